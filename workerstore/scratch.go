package workerstore

import (
	"os"
	"strings"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// CreateScratchDir allocates a fresh directory under the store's tmpdir and
// populates it with one symlink per (id, alias) pair, pointing at that id's
// on-disk blob. An in-memory blob is spilled to disk first, never living
// concurrently in both tiers. On any failure the scratch dir is removed
// before the error is returned.
func (s *Store) CreateScratchDir(files []modules.FileRef) (string, error) {
	for _, f := range files {
		if strings.ContainsRune(f.Alias, '/') || strings.ContainsRune(f.Alias, os.PathSeparator) {
			return "", errors.Extend(modules.ErrInvalidArgument, errors.New("alias must not contain a path separator: "+f.Alias))
		}
	}

	dir := s.nextScratchDir()
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", errors.Extend(modules.ErrInternal, err)
	}

	for _, f := range files {
		if err := s.linkInto(dir, f); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func (s *Store) linkInto(dir string, f modules.FileRef) error {
	s.mu.Lock()
	err := s.spillToDiskLocked(f.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	target := s.diskPath(f.ID)
	link := dir + string(os.PathSeparator) + f.Alias
	if err := os.Symlink(target, link); err != nil {
		return errors.Extend(modules.ErrInternal, err)
	}
	return nil
}

// RemoveScratchDir recursively removes dirPath. The on-disk blobs a scratch
// dir's symlinks point to are untouched; only the symlinks and the
// directory itself are removed.
func (s *Store) RemoveScratchDir(dirPath string) error {
	if err := os.RemoveAll(dirPath); err != nil {
		return errors.Extend(modules.ErrInternal, err)
	}
	return nil
}
