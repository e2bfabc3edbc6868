// Package courts maps portal court codes to display names.
package courts

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Registry is the known set of courts, loaded from a JSON object of
// code to display name. It implements crawler.CourtNamer.
type Registry struct {
	names map[string]string
	codes []string
}

// Load reads a registry from a JSON file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read court codes file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw JSON.
func Parse(data []byte) (*Registry, error) {
	names := make(map[string]string)
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse court codes: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("court codes file is empty")
	}

	codes := make([]string, 0, len(names))
	for code := range names {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return &Registry{names: names, codes: codes}, nil
}

// Codes returns all court codes in sorted order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.codes...)
}

// Name resolves a court code to its display name.
func (r *Registry) Name(code string) (string, bool) {
	name, ok := r.names[code]
	return name, ok
}
