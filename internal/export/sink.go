package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/verte-zerg/gazemap/internal/model"
)

// Sink receives finished artifacts.
type Sink interface {
	Save(a model.Artifact) (string, error)
}

// DirSink writes artifacts into a directory.
type DirSink struct {
	Dir string
}

// Save writes the artifact atomically and returns its path.
func (s DirSink) Save(a model.Artifact) (string, error) {
	if a.Filename == "" {
		return "", fmt.Errorf("artifact has no filename")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, a.Filename)
	tmpFile, err := os.CreateTemp(s.Dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp export: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(a.Bytes); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}
	return path, nil
}

// MemorySink keeps artifacts in memory.
type MemorySink struct {
	Artifacts []model.Artifact
}

// Save implements Sink.
func (s *MemorySink) Save(a model.Artifact) (string, error) {
	s.Artifacts = append(s.Artifacts, a)
	return a.Filename, nil
}
