// Package workerstore implements the per-worker content-addressed blob
// store: small blobs resident in memory, large blobs on disk at
// <tmpdir>/<id>, and scratch directories of alias symlinks assembled for a
// renderer's working tree.
package workerstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
	"github.com/lighttransport/francine/persist"
)

// Store is a worker's content-addressed blob store. A single mutex guards
// the in-memory tier, the on-disk set, and the scratch-directory counter;
// the comments on each method call out exactly what the lock covers.
type Store struct {
	mu sync.Mutex

	tmpDir         string
	inmemThreshold int64

	inmem  map[modules.FileId][]byte
	onDisk map[modules.FileId]struct{}

	scratchCount int
}

// NewStore returns a Store rooted at tmpDir, with inmemThreshold as the
// byte-size boundary at or below which a blob is kept resident in memory.
func NewStore(tmpDir string, inmemThreshold int64) *Store {
	return &Store{
		tmpDir:         tmpDir,
		inmemThreshold: inmemThreshold,
		inmem:          make(map[modules.FileId][]byte),
		onDisk:         make(map[modules.FileId]struct{}),
	}
}

func fileID(content []byte) modules.FileId {
	sum := sha256.Sum256(content)
	return modules.FileId(hex.EncodeToString(sum[:]))
}

func (s *Store) diskPath(id modules.FileId) string {
	return filepath.Join(s.tmpDir, string(id))
}

// Put computes id = SHA256(content) and stores content under id, choosing
// the in-memory or on-disk tier by size. Put is idempotent: a second Put of
// content already present under id is a no-op.
func (s *Store) Put(content []byte) (modules.FileId, int64, error) {
	id := fileID(content)
	size := int64(len(content))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inmem[id]; ok {
		return id, size, nil
	}
	if _, ok := s.onDisk[id]; ok {
		return id, size, nil
	}

	if size <= s.inmemThreshold {
		s.inmem[id] = content
		return id, size, nil
	}
	if err := writeBlob(s.diskPath(id), content); err != nil {
		return "", 0, errors.Extend(modules.ErrInternal, err)
	}
	s.onDisk[id] = struct{}{}
	return id, size, nil
}

// writeBlob writes content to path through a persist.SafeFile, so a crash
// mid-write never leaves a truncated blob at a content-addressed path.
func writeBlob(path string, content []byte) error {
	sf, err := persist.NewSafeFile(path)
	if err != nil {
		return err
	}
	defer sf.Close()
	if _, err := sf.Write(content); err != nil {
		return err
	}
	return sf.Commit()
}

// Get returns the content stored under id, checking the in-memory tier
// first and falling back to disk. The lock is held only while the tier is
// determined; the disk read itself happens outside the lock.
func (s *Store) Get(id modules.FileId) ([]byte, error) {
	s.mu.Lock()
	if b, ok := s.inmem[id]; ok {
		s.mu.Unlock()
		return b, nil
	}
	_, onDisk := s.onDisk[id]
	s.mu.Unlock()

	if !onDisk {
		return nil, errors.Extend(modules.ErrNotFound, errors.New(string(id)))
	}
	b, err := ioutil.ReadFile(s.diskPath(id))
	if os.IsNotExist(err) {
		return nil, errors.Extend(modules.ErrNotFound, errors.New(string(id)))
	}
	if err != nil {
		return nil, errors.Extend(modules.ErrInternal, err)
	}
	return b, nil
}

// Delete removes id from whichever tier holds it. Deleting an id that is
// absent from both tiers is not an error.
func (s *Store) Delete(id modules.FileId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inmem[id]; ok {
		delete(s.inmem, id)
		return nil
	}
	if _, ok := s.onDisk[id]; ok {
		delete(s.onDisk, id)
		if err := os.Remove(s.diskPath(id)); err != nil && !os.IsNotExist(err) {
			return errors.Extend(modules.ErrInternal, err)
		}
	}
	return nil
}

// Retain reads dir/filename and Puts its content, returning the assigned
// content ID. It is used to ingest a renderer's output file into the store.
func (s *Store) Retain(dir, filename string) (modules.FileId, int64, error) {
	content, err := ioutil.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return "", 0, errors.Extend(modules.ErrNotFound, err)
	}
	return s.Put(content)
}

// nextScratchDir allocates the next scratch directory path and increments
// the scratch counter, both under the store's lock.
func (s *Store) nextScratchDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.scratchCount
	s.scratchCount++
	return filepath.Join(s.tmpDir, strconv.Itoa(n))
}

// spillToDiskLocked ensures id is materialized on disk, moving it out of
// the in-memory tier if necessary. Called under the store's lock.
func (s *Store) spillToDiskLocked(id modules.FileId) error {
	if _, ok := s.onDisk[id]; ok {
		return nil
	}
	content, ok := s.inmem[id]
	if !ok {
		return errors.Extend(modules.ErrNotFound, errors.New(string(id)))
	}
	if err := writeBlob(s.diskPath(id), content); err != nil {
		return errors.Extend(modules.ErrInternal, err)
	}
	delete(s.inmem, id)
	s.onDisk[id] = struct{}{}
	return nil
}
