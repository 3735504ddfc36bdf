package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSlot stores the slot value in a single file. Writes go to a temp file
// in the same directory and are renamed into place.
type FileSlot struct {
	path string
}

// NewFileSlot creates a slot backed by path.
func NewFileSlot(path string) (*FileSlot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: slot path must not be empty")
	}
	return &FileSlot{path: path}, nil
}

func (s *FileSlot) Get(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("repository: read slot %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileSlot) Put(_ context.Context, value []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("repository: create slot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".slot-*")
	if err != nil {
		return fmt.Errorf("repository: create temp slot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: write temp slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: close temp slot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: replace slot %s: %w", s.path, err)
	}
	return nil
}
