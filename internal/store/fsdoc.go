package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inksync/internal/util"
)

// FSDocuments stores documents as plain files under the workspace root.
type FSDocuments struct {
	root string
}

func NewFSDocuments(root string) (*FSDocuments, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace path: %w", err)
	}

	return &FSDocuments{root: abs}, nil
}

func (s *FSDocuments) path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: path %q escapes workspace", ErrBadState, rel)
	}

	return filepath.Join(s.root, clean), nil
}

func (s *FSDocuments) Write(_ context.Context, rel string, content []byte) error {
	dst, err := s.path(rel)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(dst, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	return nil
}

func (s *FSDocuments) Read(_ context.Context, rel string) ([]byte, error) {
	src, err := s.path(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return data, nil
}

func (s *FSDocuments) Remove(_ context.Context, rel string) error {
	target, err := s.path(rel)
	if err != nil {
		return err
	}

	return util.RemoveIfExists(target)
}

func (s *FSDocuments) Rename(_ context.Context, oldRel, newRel string) error {
	src, err := s.path(oldRel)
	if err != nil {
		return err
	}

	dst, err := s.path(newRel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldRel, err)
	}

	return nil
}
