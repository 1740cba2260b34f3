package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/pmx"
)

// Loader reads model files and caches parse results by the BLAKE3 digest of
// their contents. Every Load returns a fresh Model; models loaded from
// identical bytes share one immutable parse result. A Loader is safe for
// concurrent use.
type Loader struct {
	opts []Option

	mu     sync.Mutex
	cache  map[[32]byte]*pmx.Model
	hits   int
	misses int
}

func NewLoader(opts ...Option) *Loader {
	return &Loader{opts: opts, cache: make(map[[32]byte]*pmx.Model)}
}

// Result is delivered by LoadAsync.
type Result struct {
	Model *Model
	Err   error
}

// ReadFile returns the bytes of a .pmx file, decompressing .xz files.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".xz") {
		return data, nil
	}
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	out, err := io.ReadAll(xr)
	if err != nil {
		return nil, fmt.Errorf("xz decompress %s: %w", path, err)
	}
	return out, nil
}

// Parse returns the parse result for data, reusing a cached one when the
// same bytes were parsed before.
func (l *Loader) Parse(ctx context.Context, data []byte) (*pmx.Model, error) {
	key := blake3.Sum256(data)
	l.mu.Lock()
	if m, ok := l.cache[key]; ok {
		l.hits++
		l.mu.Unlock()
		return m, nil
	}
	l.misses++
	l.mu.Unlock()

	m, err := pmx.LoadContext(ctx, data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.cache[key]; ok {
		return prev, nil
	}
	l.cache[key] = m
	return m, nil
}

// LoadBytes parses data through the cache and builds a Model.
func (l *Loader) LoadBytes(ctx context.Context, data []byte) (*Model, error) {
	m, err := l.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return New(m, l.opts...)
}

// Load reads path and builds a Model.
func (l *Loader) Load(ctx context.Context, path string) (*Model, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := l.LoadBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Debug("model loaded", "path", path, "name", m.data.Name, "bones", len(m.data.Bones), "morphs", len(m.data.Morphs))
	return m, nil
}

// LoadAsync loads path on a goroutine. The channel receives exactly one
// Result and is then closed.
func (l *Loader) LoadAsync(ctx context.Context, path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		m, err := l.Load(ctx, path)
		ch <- Result{Model: m, Err: err}
	}()
	return ch
}

// Stats returns cache hits and misses.
func (l *Loader) Stats() (hits, misses int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hits, l.misses
}
