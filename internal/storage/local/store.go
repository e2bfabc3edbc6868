package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// Config carries the store settings.
type Config struct {
	// BaseDir is the root under which document trees are laid out.
	BaseDir string
}

// Store lays documents out under BaseDir following the portal's own
// reference paths, with a JSON descriptor next to each document. It
// implements crawler.DocumentStore.
type Store struct {
	baseDir string
}

// NewStore validates that BaseDir exists and is writable.
func NewStore(cfg Config) (*Store, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("base dir is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	probe, err := os.CreateTemp(cfg.BaseDir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("base dir not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Downloaded reports whether ref's descriptor records a completed
// download. A missing or unreadable descriptor counts as not downloaded.
func (s *Store) Downloaded(ref string) bool {
	d, ok, err := s.ReadDescriptor(ref)
	if err != nil || !ok {
		return false
	}
	return d.Downloaded
}

// PutDocument writes the document bytes and returns the path written.
func (s *Store) PutDocument(ref string, data []byte) (string, error) {
	path, err := s.documentPath(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

// ReadDescriptor loads ref's descriptor. The second return reports
// whether a descriptor exists.
func (s *Store) ReadDescriptor(ref string) (crawler.Descriptor, bool, error) {
	path, err := s.descriptorPath(ref)
	if err != nil {
		return crawler.Descriptor{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return crawler.Descriptor{}, false, nil
		}
		return crawler.Descriptor{}, false, fmt.Errorf("read descriptor: %w", err)
	}
	var d crawler.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return crawler.Descriptor{}, false, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return d, true, nil
}

// WriteDescriptor persists ref's descriptor and returns the path written.
func (s *Store) WriteDescriptor(ref string, d crawler.Descriptor) (string, error) {
	path, err := s.descriptorPath(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create descriptor dir: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}
	return path, nil
}

// documentPath maps a portal reference onto a path under BaseDir,
// rejecting references that would escape it.
func (s *Store) documentPath(ref string) (string, error) {
	clean := filepath.Clean(strings.TrimLeft(ref, "/"))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid document reference %q", ref)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// descriptorPath is the document path with its extension swapped for
// .json.
func (s *Store) descriptorPath(ref string) (string, error) {
	path, err := s.documentPath(ref)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".json", nil
}
