// Package persist provides utilities shared by every component that writes
// to disk: a file logger, and a safe-file primitive that writes to a
// temporary file and only replaces the target on a successful Commit.
package persist

import (
	"os"
	"path/filepath"

	"gitlab.com/NebulousLabs/fastrand"
)

// persistDir is the subdirectory name used by this package's own tests.
const persistDir = "persist"

// RandomSuffix returns a 20-character random string suitable for appending
// to a filename to avoid collisions between concurrent temp files.
func RandomSuffix() string {
	return hexEncode(fastrand.Bytes(10))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	dst := make([]byte, len(b)*2)
	for i, v := range b {
		dst[i*2] = hextable[v>>4]
		dst[i*2+1] = hextable[v&0x0f]
	}
	return string(dst)
}

// SafeFile wraps a temporary file that is only moved to its intended final
// path when Commit is called, so that a crash or error between creation and
// completion never leaves a half-written file at the final path.
type SafeFile struct {
	f         *os.File
	finalPath string
}

// NewSafeFile creates a new SafeFile. The final path is resolved to an
// absolute path immediately, so a later os.Chdir does not change where
// Commit writes the file.
func NewSafeFile(path string) (*SafeFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	tmp, err := os.Create(absPath + "_temp" + RandomSuffix())
	if err != nil {
		return nil, err
	}
	return &SafeFile{f: tmp, finalPath: absPath}, nil
}

// Name returns the path of the underlying temporary file, not the final
// path the file will have once committed.
func (sf *SafeFile) Name() string {
	return sf.f.Name()
}

// Write writes to the underlying temporary file.
func (sf *SafeFile) Write(p []byte) (int, error) {
	return sf.f.Write(p)
}

// Close closes the underlying temporary file without committing it. If
// Commit was never called, the temporary file is removed.
func (sf *SafeFile) Close() error {
	err := sf.f.Close()
	if _, statErr := os.Stat(sf.f.Name()); statErr == nil {
		os.Remove(sf.f.Name())
	}
	return err
}

// Commit flushes and closes the temporary file, then renames it to the
// final path, replacing any file already there.
func (sf *SafeFile) Commit() error {
	if err := sf.f.Sync(); err != nil {
		return err
	}
	if err := sf.f.Close(); err != nil {
		return err
	}
	return os.Rename(sf.f.Name(), sf.finalPath)
}
