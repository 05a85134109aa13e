package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps media on the local filesystem under a base directory.
// It backs the inline dispatch mode, where submission and processing share a
// process and a disk.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Put(ctx context.Context, objectPath, localPath string) error {
	dst := filepath.Join(s.baseDir, objectPath)
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return err
	}
	return copyFile(localPath, dst)
}

func (s *LocalStore) Fetch(ctx context.Context, objectPath, localPath string) error {
	return copyFile(filepath.Join(s.baseDir, objectPath), localPath)
}

func (s *LocalStore) Remove(ctx context.Context, objectPath string) error {
	err := os.Remove(filepath.Join(s.baseDir, objectPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
