package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrIO        = errors.New("io error")
	ErrData      = errors.New("data error")
	ErrExhausted = errors.New("allocation exhausted")
	ErrNotFound  = errors.New("not found")
	ErrExists    = errors.New("already exists")
)

// Store is a directory holding one file per attribute and one
// subdirectory per nested entity.
type Store struct {
	home string
}

// Ensure validates that home is a writable directory, creating it when it
// does not exist yet.
func Ensure(home string) (*Store, error) {
	info, err := os.Stat(home)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: data directory %s is not a directory", ErrData, home)
		}
		if err := unix.Access(home, unix.W_OK); err != nil {
			return nil, fmt.Errorf("%w: data directory %s is not writeable: %w", ErrData, home, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Mkdir(home, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create data directory %s: %w", ErrData, home, err)
		}
		slog.Debug("Created data directory", "path", home)
	default:
		return nil, fmt.Errorf("%w: failed to stat data directory %s: %w", ErrData, home, err)
	}
	return &Store{home: home}, nil
}

// Open returns the store at home without creating it.
func Open(home string) (*Store, error) {
	info, err := os.Stat(home)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %s", ErrData, ErrNotFound, home)
		}
		return nil, fmt.Errorf("%w: failed to stat %s: %w", ErrData, home, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrData, home)
	}
	return &Store{home: home}, nil
}

func (s *Store) Home() string {
	return s.home
}

// File returns the path of the named attribute or entity.
func (s *Store) File(name string) string {
	return filepath.Join(s.home, name)
}

// Reserve atomically creates a new subdirectory named "{prefix}-{n}" and
// returns its name. Exclusive directory creation is the only guard against
// concurrent reservations; no in-process locking is involved.
func (s *Store) Reserve(prefix string) (string, error) {
	counter := NewNameCounter()
	for {
		suffix, ok := counter.Next()
		if !ok {
			return "", fmt.Errorf("%w: ran out of names for %s under %s", ErrExhausted, prefix, s.home)
		}
		name := prefix + "-" + suffix
		path := s.File(name)
		err := os.Mkdir(path, 0755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: failed to create %s: %w", ErrData, path, err)
		}
	}
}

// Sub opens the nested store for an existing entity.
func (s *Store) Sub(name string) (*Store, error) {
	return Open(s.File(name))
}

// EnsureSub opens the nested store for name, creating it if needed.
func (s *Store) EnsureSub(name string) (*Store, error) {
	return Ensure(s.File(name))
}

// Create makes the sub-store name and fails with ErrExists if it is
// already there. Only one of several concurrent callers wins.
func (s *Store) Create(name string) (*Store, error) {
	path := s.File(name)
	if err := os.Mkdir(path, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("%w: failed to create %s: %w", ErrIO, path, err)
	}
	return &Store{home: path}, nil
}

func (s *Store) Read(name string) (string, error) {
	data, err := s.ReadBytes(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) ReadBytes(name string) ([]byte, error) {
	path := s.File(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, path, err)
	}
	return data, nil
}

func (s *Store) Write(name string, data string) error {
	return s.WriteBytes(name, []byte(data), 0644)
}

func (s *Store) WriteBytes(name string, data []byte, perm os.FileMode) error {
	path := s.File(name)
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrIO, path, err)
	}
	return nil
}

// Exists reports whether the named attribute or entity is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.File(name))
	return err == nil
}

// Remove deletes the named attribute. Of several concurrent callers at most
// one gets a nil error; the others see ErrNotFound.
func (s *Store) Remove(name string) error {
	path := s.File(name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("%w: failed to remove %s: %w", ErrIO, path, err)
	}
	return nil
}

// Entry describes one item in a store listing.
type Entry struct {
	Name     string
	Dir      bool
	Modified time.Time
}

// List returns the store's entries ordered by name.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.home)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", ErrIO, s.home, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		entries = append(entries, Entry{
			Name:     de.Name(),
			Dir:      info.IsDir(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
