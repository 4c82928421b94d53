package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore implements Store on the local filesystem: one directory per
// tier under a common root. Writes are atomic (temp file plus rename in
// the same directory), so a crashed write never leaves a partial blob
// visible.
type FileStore struct {
	root  string
	tiers map[string]struct{}
	order []string
}

// NewFileStore creates the tier directories under root. The tier set is
// validated here, once, and every operation checks against it.
func NewFileStore(root string, tiers []string) (*FileStore, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one storage tier is required")
	}

	s := &FileStore{
		root:  root,
		tiers: make(map[string]struct{}, len(tiers)),
	}
	for _, tier := range tiers {
		if tier == "" || strings.ContainsAny(tier, `/\`) {
			return nil, fmt.Errorf("invalid tier name %q", tier)
		}
		if _, dup := s.tiers[tier]; dup {
			return nil, fmt.Errorf("duplicate tier name %q", tier)
		}
		s.tiers[tier] = struct{}{}
		s.order = append(s.order, tier)
		if err := os.MkdirAll(filepath.Join(root, tier), 0o755); err != nil {
			return nil, fmt.Errorf("creating tier directory %q: %w", tier, err)
		}
	}
	return s, nil
}

// Tiers returns the configured tier names in construction order.
func (s *FileStore) Tiers() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *FileStore) path(tier, name string) (string, error) {
	if _, ok := s.tiers[tier]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	// Blob names are flat: no separators, no traversal.
	if strings.ContainsAny(name, `/\`) || name != filepath.Clean(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, tier, name), nil
}

func (s *FileStore) Read(ctx context.Context, tier, name string) ([]byte, error) {
	p, err := s.path(tier, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, mapFSError(err, tier, name)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, tier, name string, data []byte) error {
	p, err := s.path(tier, name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+name+"-*")
	if err != nil {
		return mapFSError(err, tier, name)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapFSError(err, tier, name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mapFSError(err, tier, name)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return mapFSError(err, tier, name)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, tier string) ([]BlobInfo, error) {
	if _, ok := s.tiers[tier]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, tier))
	if err != nil {
		return nil, mapFSError(err, tier, "")
	}

	var blobs []BlobInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{
			Name:       entry.Name(),
			Tier:       tier,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

func (s *FileStore) Delete(ctx context.Context, tier, name string) error {
	p, err := s.path(tier, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return mapFSError(err, tier, name)
	}
	return nil
}

func mapFSError(err error, tier, name string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s/%s", ErrNotFound, tier, name)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s/%s", ErrAccessDenied, tier, name)
	default:
		return fmt.Errorf("%w: %s/%s: %v", ErrTransientIO, tier, name, err)
	}
}
