package texture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"pmx-pose-renderer/internal/logging"
)

var ErrNotFound = errors.New("texture: not found")

// Store shares decoded textures between models. Entries are reference
// counted; the last Release evicts the image. A Store is safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]*entry
	index *Index
}

type entry struct {
	img  *image.NRGBA
	refs int
}

// Handle is one reference to a stored texture.
type Handle struct {
	s        *Store
	path     string
	img      *image.NRGBA
	released bool
}

// NewStore creates a store resolving names through index.
func NewStore(index *Index) *Store {
	return &Store{
		items: make(map[string]*entry),
		index: index,
	}
}

// Acquire loads texName or takes another reference to an already loaded copy.
func (s *Store) Acquire(texName string) (*Handle, error) {
	path, ok := s.index.ResolvePath(texName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, texName)
	}

	s.mu.Lock()
	if e, exists := s.items[path]; exists {
		e.refs++
		s.mu.Unlock()
		return &Handle{s: s, path: path, img: e.img}, nil
	}
	s.mu.Unlock()

	img, err := LoadTexture(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.items[path]
	if !exists {
		e = &entry{img: img}
		s.items[path] = e
		logging.Debug("texture loaded", "path", path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	}
	e.refs++
	return &Handle{s: s, path: path, img: e.img}, nil
}

// Image returns the decoded texture.
func (h *Handle) Image() *image.NRGBA { return h.img }

// Release drops this reference. Releasing twice is a no-op.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[h.path]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.items, h.path)
	}
}

// Len returns the number of textures currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Refs returns the reference count of the file texName resolves to.
func (s *Store) Refs(texName string) int {
	path, ok := s.index.ResolvePath(texName)
	if !ok {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.items[path]; ok {
		return e.refs
	}
	return 0
}

// Set holds one handle per entry of a model's texture table.
type Set struct {
	handles []*Handle
}

// AcquireAll acquires every name in a model's texture table. Names that
// cannot be loaded are logged and left empty in Images.
func (s *Store) AcquireAll(names []string) *Set {
	set := &Set{handles: make([]*Handle, len(names))}
	for i, name := range names {
		h, err := s.Acquire(name)
		if err != nil {
			logging.Warn("texture unavailable", "texture", name, "error", err)
			continue
		}
		set.handles[i] = h
	}
	return set
}

// Images returns the decoded textures indexed like the texture table.
func (set *Set) Images() []*image.NRGBA {
	out := make([]*image.NRGBA, len(set.handles))
	for i, h := range set.handles {
		if h != nil {
			out[i] = h.img
		}
	}
	return out
}

// Release drops every reference held by the set.
func (set *Set) Release() {
	for _, h := range set.handles {
		h.Release()
	}
}
