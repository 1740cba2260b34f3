package texture

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Index maps lowercased model-relative paths to files on disk. PMX texture
// names are written on Windows, so lookups ignore case and accept either
// separator.
type Index struct {
	root    string
	entries map[string]string // "tex/face.png" → full path
	bases   map[string]string // "face.png" → full path, first seen
}

// BuildIndex walks modelDir and indexes every file below it.
func BuildIndex(modelDir string) *Index {
	idx := &Index{
		root:    modelDir,
		entries: make(map[string]string),
		bases:   make(map[string]string),
	}
	filepath.WalkDir(modelDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(modelDir, p)
		if err != nil {
			return nil
		}
		key := normalize(rel)
		idx.entries[key] = p
		if base := path.Base(key); idx.bases[base] == "" {
			idx.bases[base] = p
		}
		return nil
	})
	return idx
}

func normalize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	return strings.ToLower(name)
}

// ResolvePath returns the file for a texture name from the model's texture
// table. An exact relative match wins; otherwise the bare file name is tried.
func (idx *Index) ResolvePath(texName string) (string, bool) {
	key := normalize(texName)
	if p, ok := idx.entries[key]; ok {
		return p, true
	}
	p, ok := idx.bases[path.Base(key)]
	return p, ok
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	return len(idx.entries)
}
