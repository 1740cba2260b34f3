package batch

import (
	"encoding/json"
	"os"

	"pmx-pose-renderer/internal/pmx"
)

// ManifestEntry represents one rendered morph in the output manifest.
type ManifestEntry struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	NameEN string `json:"name_en,omitempty"`
	Kind   string `json:"kind"`
	Panel  int    `json:"panel"`
	Image  string `json:"image,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WriteManifest writes manifest.json describing results to path.
func WriteManifest(path string, data *pmx.Model, results []Result) error {
	entries := make([]ManifestEntry, len(results))
	for i, r := range results {
		mo := &data.Morphs[r.Morph]
		entries[i] = ManifestEntry{
			Index:  int(r.Morph),
			Name:   mo.Name,
			NameEN: mo.NameEN,
			Kind:   mo.Kind.String(),
			Panel:  int(mo.Panel),
			Error:  r.Error,
		}
		if r.Success {
			entries[i].Image = r.Image
		}
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
