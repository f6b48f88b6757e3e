package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	errs "grokfav/pkg/errors"
)

// Manager writes downloaded media below a base directory. Every target is a
// slash-separated path relative to that directory.
type Manager struct {
	baseDir string
	saved   map[string]int64
	mu      sync.RWMutex
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string) (*Manager, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Manager{
		baseDir: abs,
		saved:   make(map[string]int64),
	}, nil
}

// Resolve maps a relative target onto the filesystem. Absolute targets and
// targets that climb out of the base directory are rejected.
func (m *Manager) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", errs.New(errs.ErrorTypeInvalidRequest, "empty target path")
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", errs.New(errs.ErrorTypeInvalidRequest, "target path %q must be relative", rel)
	}

	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.New(errs.ErrorTypeInvalidRequest, "target path %q escapes the output directory", rel)
	}
	return filepath.Join(m.baseDir, clean), nil
}

// Exists reports whether a file is already present at rel
func (m *Manager) Exists(rel string) bool {
	m.mu.RLock()
	_, ok := m.saved[rel]
	m.mu.RUnlock()
	if ok {
		return true
	}

	path, err := m.Resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save streams r to rel through a temporary file and an atomic rename.
// A positive maxBytes bounds the accepted size.
func (m *Manager) Save(r io.Reader, rel string, maxBytes int64) (int64, error) {
	path, err := m.Resolve(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create target directory: %w", err)
	}

	out, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	closeErr := out.Close()

	switch {
	case err != nil:
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to write media data: %w", err)
	case closeErr != nil:
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		os.Remove(tempFile)
		return 0, errs.New(errs.ErrorTypeInvalidRequest, "%s exceeds the %d byte limit", rel, maxBytes)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[rel] = n
	m.mu.Unlock()

	return n, nil
}

// WriteFile atomically replaces rel with data
func (m *Manager) WriteFile(rel string, data []byte) error {
	_, err := m.Save(strings.NewReader(string(data)), rel, 0)
	return err
}

// BaseDir returns the absolute output directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// SavedCount returns the number of files written by this manager
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}

// SavedBytes returns the total bytes written by this manager
func (m *Manager) SavedBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, n := range m.saved {
		total += n
	}
	return total
}
