// Package archive groups produced files into per-court, per-bench,
// per-year bundles and writes a manifest describing them.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Bundle is one archival unit: all files a crawl produced for a single
// court bench in a single year.
type Bundle struct {
	Court string   `json:"court"`
	Bench string   `json:"bench"`
	Year  string   `json:"year"`
	Files []string `json:"files"`
}

// Manifest accumulates produced file paths during a crawl and renders
// them as bundles. It implements crawler.ArtifactRecorder and is safe
// for concurrent use.
type Manifest struct {
	mu    sync.Mutex
	files map[bundleKey][]string
}

type bundleKey struct {
	court string
	bench string
	year  string
}

// NewManifest constructs an empty Manifest.
func NewManifest() *Manifest {
	return &Manifest{files: make(map[bundleKey][]string)}
}

// RecordDescriptor adds a descriptor path to its bundle.
func (m *Manifest) RecordDescriptor(courtCode, ref, path string) {
	m.record(courtCode, ref, path)
}

// RecordDocument adds a document path to its bundle.
func (m *Manifest) RecordDocument(courtCode, ref, path string) {
	m.record(courtCode, ref, path)
}

func (m *Manifest) record(courtCode, ref, path string) {
	bench, year := benchYearFromRef(ref)
	key := bundleKey{court: courtCode, bench: bench, year: year}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = append(m.files[key], path)
}

// Bundles renders the accumulated files as sorted bundles.
func (m *Manifest) Bundles() []Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Bundle, 0, len(m.files))
	for key, files := range m.files {
		sorted := append([]string(nil), files...)
		sort.Strings(sorted)
		out = append(out, Bundle{
			Court: key.court,
			Bench: key.bench,
			Year:  key.year,
			Files: sorted,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Court != b.Court {
			return a.Court < b.Court
		}
		if a.Bench != b.Bench {
			return a.Bench < b.Bench
		}
		return a.Year < b.Year
	})
	return out
}

// WriteFile persists the manifest as JSON.
func (m *Manifest) WriteFile(path string) error {
	bundles := m.Bundles()
	data, err := json.MarshalIndent(bundles, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// benchYearFromRef derives the bench and year from a portal reference
// path, which looks like cnrorders/<bench>/orders/<year>/<file>. The
// court itself is not part of the path and is recorded separately.
// References outside that shape land in a catch-all bench so nothing is
// dropped.
func benchYearFromRef(ref string) (bench, year string) {
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	for i, part := range parts {
		if part != "cnrorders" || i+1 >= len(parts) {
			continue
		}
		bench, year = parts[i+1], "unknown"
		for _, seg := range parts[i+2:] {
			if len(seg) == 4 && isDigits(seg) {
				year = seg
				break
			}
		}
		return bench, year
	}
	return "unsorted", "unknown"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
