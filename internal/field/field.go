// Package field manages provisioning domains. Each Field is a directory
// holding its root CA and the admin public key.
package field

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/store"
)

const (
	AdminKeyFile = "admin.pub"
	RootKeyFile  = "root.key"
	RootCertFile = "root.crt"
)

var (
	ErrFieldExists   = errors.New("field already exists")
	ErrFieldNotFound = errors.New("field not found")
	ErrNoFields      = errors.New("no fields found")
	ErrInvalidName   = errors.New("invalid field name")
)

// validateName keeps a Field name to a single entry inside the catalog.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

type Field struct {
	Name     string
	Modified time.Time
	store    *store.Store
}

func (f *Field) Store() *store.Store {
	return f.store
}

func (f *Field) AdminKeyPath() string {
	return f.store.File(AdminKeyFile)
}

func (f *Field) RootCertPath() string {
	return f.store.File(RootCertFile)
}

func (f *Field) RootKeyPath() string {
	return f.store.File(RootKeyFile)
}

type Catalog struct {
	store *store.Store
}

func NewCatalog(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// List returns all Fields, least recently modified first.
func (c *Catalog) List() ([]Field, error) {
	entries, err := c.store.List()
	if err != nil {
		return nil, err
	}
	var fields []Field
	for _, e := range entries {
		if !e.Dir {
			continue
		}
		sub, err := c.store.Sub(e.Name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: e.Name, Modified: e.Modified, store: sub})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Modified.Before(fields[j].Modified) })
	return fields, nil
}

// Latest returns the most recently modified Field.
func (c *Catalog) Latest() (*Field, error) {
	fields, err := c.List()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return &fields[len(fields)-1], nil
}

func (c *Catalog) Get(name string) (*Field, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	info, err := os.Stat(c.store.File(name))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	sub, err := c.store.Sub(name)
	if err != nil {
		return nil, err
	}
	return &Field{Name: name, Modified: info.ModTime(), store: sub}, nil
}

// Create initialises a new Field with the given admin public key and a fresh
// root CA. The returned password protects root.key and is not stored.
func (c *Catalog) Create(name, adminKeyPath string, authority cert.Authority) (*Field, string, error) {
	if err := validateName(name); err != nil {
		return nil, "", err
	}

	adminKey, err := os.ReadFile(adminKeyPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read admin public key %s: %w", store.ErrIO, adminKeyPath, err)
	}

	sub, err := c.store.Create(name)
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, "", fmt.Errorf("%w: %s", ErrFieldExists, name)
		}
		return nil, "", err
	}

	password, err := populate(sub, name, adminKey, authority)
	if err != nil {
		return nil, "", fmt.Errorf("field %s left incomplete at %s, remove it before retrying: %w", name, sub.Home(), err)
	}

	slog.Info("Created field", "field", name, "path", sub.Home())
	return &Field{Name: name, Modified: time.Now(), store: sub}, password, nil
}

func populate(sub *store.Store, name string, adminKey []byte, authority cert.Authority) (string, error) {
	if err := sub.WriteBytes(AdminKeyFile, adminKey, 0644); err != nil {
		return "", err
	}
	password, key, certPEM, err := authority.GenerateRootCA(name)
	if err != nil {
		return "", err
	}
	if err := sub.WriteBytes(RootKeyFile, key, 0600); err != nil {
		return "", err
	}
	if err := sub.WriteBytes(RootCertFile, certPEM, 0644); err != nil {
		return "", err
	}
	return password, nil
}
