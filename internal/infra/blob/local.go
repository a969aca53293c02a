// Package blob stores photo bytes and hands back the reference recorded on
// the attachment.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const localScheme = "local://"

// LocalStore writes blobs under a root directory.
type LocalStore struct {
	root     string
	maxBytes int64
}

func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: abs, maxBytes: maxBytes}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, _ string, body io.Reader) (string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := copyLimited(tmp, body, s.maxBytes); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", err
	}
	return localScheme + filepath.ToSlash(key), nil
}

// Open resolves a reference produced by Put.
func (s *LocalStore) Open(ref string) (*os.File, error) {
	key, ok := strings.CutPrefix(ref, localScheme)
	if !ok {
		return nil, fmt.Errorf("%w: not a local blob reference", domain.ErrInvalidArgument)
	}
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: invalid blob key %q", domain.ErrInvalidArgument, key)
	}
	target := filepath.Join(s.root, clean)
	rel, err := filepath.Rel(s.root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: invalid blob key %q", domain.ErrInvalidArgument, key)
	}
	return target, nil
}

// copyLimited fails with ErrInvalidArgument once more than limit bytes
// arrive. limit <= 0 means unlimited.
func copyLimited(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("%w: photo exceeds %d bytes", domain.ErrInvalidArgument, limit)
	}
	return n, nil
}
