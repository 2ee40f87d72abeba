// Package files persists PEM artifacts into a single directory. Every write
// goes to a temporary file in the same directory which is then renamed over
// the target, so readers never observe a half-written file.
package files

import (
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirMode     fs.FileMode = 0o755
	publicMode  fs.FileMode = 0o644
	privateMode fs.FileMode = 0o600
)

// ErrInvalidName is returned when an artifact name is not a plain file name.
var ErrInvalidName = errors.New("invalid artifact name")

// Store writes artifacts under Dir. The directory is created on first use.
type Store struct {
	dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory artifacts are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of the named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Persist atomically writes data as the named artifact, replacing any
// previous version. Artifacts holding a private key PEM block are written
// with mode 0600, everything else with 0644.
func (s *Store) Persist(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("creating artifact directory %s: %w", s.dir, err)
	}
	mode := publicMode
	if holdsPrivateKey(data) {
		mode = privateMode
	}
	return atomicWrite(s.Path(name), data, mode)
}

// Read returns the named artifact's contents.
func (s *Store) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

func holdsPrivateKey(data []byte) bool {
	found := false
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		found = true
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return true
		}
	}
	// Content that is not PEM at all is kept private.
	return !found
}

func atomicWrite(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	committed = true
	return nil
}
