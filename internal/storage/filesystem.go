package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"diagramd/internal/domain"
)

// RunStore manages per-job run directories on the local filesystem. Every
// artifact a job produces lives under its own run directory, and reads are
// confined to that directory.
type RunStore struct {
	basePath string
}

// NewRunStore initializes a RunStore rooted at basePath.
func NewRunStore(basePath string) (*RunStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &RunStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *RunStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// CreateRunDir makes a dedicated output directory for the given job and
// returns its absolute path.
func (s *RunStore) CreateRunDir(jobID string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	name, err := sanitizeName(jobID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.basePath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure run dir: %w", err)
	}
	return dir, nil
}

// Write persists the provided bytes as filename inside runDir and returns
// the absolute path of the written file.
func (s *RunStore) Write(runDir, filename string, data []byte) (string, error) {
	path, err := join(runDir, filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return path, nil
}

// Resolve maps filename to an existing file strictly inside runDir. Any
// name that would escape the directory, and any missing or non-regular
// file, yields domain.ErrNotFound.
func (s *RunStore) Resolve(runDir, filename string) (string, error) {
	path, err := join(runDir, filename)
	if err != nil {
		return "", domain.ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", domain.ErrNotFound
	}
	return path, nil
}

func join(runDir, filename string) (string, error) {
	runDir = strings.TrimSpace(runDir)
	if runDir == "" {
		return "", errors.New("storage: run dir is required")
	}
	name, err := sanitizeName(filename)
	if err != nil {
		return "", err
	}
	root := filepath.Clean(runDir)
	path := filepath.Join(root, name)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", errors.New("storage: invalid name")
	}
	return path, nil
}

// sanitizeName accepts a single path element and rejects anything that
// could traverse outside the target directory.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("storage: name is required")
	}
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.Contains(name, "/") {
		return "", errors.New("storage: invalid name")
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." {
		return "", errors.New("storage: invalid name")
	}
	return cleaned, nil
}
