package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type FileTargetsSource struct {
	FilePath string
}

func NewFileTargetsSource(filePath string) *FileTargetsSource {
	return &FileTargetsSource{FilePath: filePath}
}

func (s *FileTargetsSource) Load(ctx context.Context) ([]byte, error) {
	return os.ReadFile(s.FilePath)
}

// FilePlanStore writes each plan to Dir/key.
type FilePlanStore struct {
	Dir string
}

func NewFilePlanStore(dir string) *FilePlanStore {
	return &FilePlanStore{Dir: dir}
}

func (s *FilePlanStore) Save(ctx context.Context, key string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plans dir: %w", err)
	}
	return os.WriteFile(filepath.Join(s.Dir, filepath.Base(key)), data, 0o644)
}
