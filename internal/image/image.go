// Package image keeps the local catalog of versioned filesystem archives.
package image

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/barley-project/barley/internal/store"
)

const (
	Extension     = ".tar.zst"
	versionLayout = "20060102"
)

var (
	ErrInvalidImage = errors.New("not a valid image file")
	ErrImageExists  = errors.New("image version already exists")
	ErrNoImages     = errors.New("no images found")
)

type Image struct {
	Name    string
	Version string
}

func (i Image) FileName() string {
	return i.Name + "_" + i.Version + Extension
}

func (i Image) String() string {
	return i.Name + ":" + i.Version
}

// ParseFileName splits "{name}[_{version}].tar.zst". Version is empty when
// the file name carries none.
func ParseFileName(fileName string) (Image, error) {
	base, ok := strings.CutSuffix(fileName, Extension)
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrInvalidImage, fileName)
	}
	name, version, _ := strings.Cut(base, "_")
	if name == "" || strings.ContainsAny(name, "/\\") {
		return Image{}, fmt.Errorf("%w: %s", ErrInvalidImage, fileName)
	}
	return Image{Name: name, Version: version}, nil
}

type Catalog struct {
	store *store.Store
	now   func() time.Time
}

func NewCatalog(s *store.Store) *Catalog {
	return &Catalog{store: s, now: time.Now}
}

func (c *Catalog) Path(img Image) string {
	return c.store.File(img.FileName())
}

func (c *Catalog) Exists(img Image) bool {
	info, err := os.Stat(c.Path(img))
	return err == nil && info.Mode().IsRegular()
}

// List returns all images sorted by name, then by version.
func (c *Catalog) List() ([]Image, error) {
	entries, err := c.store.List()
	if err != nil {
		return nil, err
	}
	var images []Image
	for _, e := range entries {
		if e.Dir {
			continue
		}
		img, err := ParseFileName(e.Name)
		if err != nil {
			continue
		}
		images = append(images, img)
	}
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Name != images[j].Name {
			return images[i].Name < images[j].Name
		}
		return CompareVersions(images[i].Version, images[j].Version) < 0
	})
	return images, nil
}

// Latest returns the greatest version of the named image.
func (c *Catalog) Latest(name string) (Image, error) {
	images, err := c.List()
	if err != nil {
		return Image{}, err
	}
	var latest *Image
	for i := range images {
		if images[i].Name != name {
			continue
		}
		if latest == nil || CompareVersions(images[i].Version, latest.Version) > 0 {
			latest = &images[i]
		}
	}
	if latest == nil {
		return Image{}, fmt.Errorf("%w for '%s'", ErrNoImages, name)
	}
	return *latest, nil
}

// GenerateVersion derives a version for name from today's date, adding or
// bumping a ".N" suffix when a version for today already exists.
func (c *Catalog) GenerateVersion(name string) (string, error) {
	today := c.now().Format(versionLayout)
	if !c.Exists(Image{Name: name, Version: today}) {
		return today, nil
	}

	images, err := c.List()
	if err != nil {
		return "", err
	}
	var highest uint64
	for _, img := range images {
		if img.Name != name {
			continue
		}
		v := parseVersion(img.Version)
		if v.primary == today && v.hasSuffix && v.suffix > highest {
			highest = v.suffix
		}
	}
	return fmt.Sprintf("%s.%d", today, highest+1), nil
}

// Import adds the archive at path to the catalog, hard-linking it when
// possible. Neither an invalid file name nor an existing version mutates the
// catalog.
func (c *Catalog) Import(path string) (Image, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Image{}, fmt.Errorf("%w: %s", ErrInvalidImage, path)
	}
	img, err := ParseFileName(filepath.Base(path))
	if err != nil {
		return Image{}, err
	}
	if img.Version == "" {
		img.Version, err = c.GenerateVersion(img.Name)
		if err != nil {
			return Image{}, err
		}
	}
	if c.Exists(img) {
		return Image{}, fmt.Errorf("%w: %s", ErrImageExists, img)
	}

	dest := c.Path(img)
	if err := os.Link(path, dest); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Image{}, fmt.Errorf("%w: %s", ErrImageExists, img)
		}
		slog.Warn("Failed to create hard link, copying instead", "path", dest, "error", err)
		if err := copyFile(path, dest); err != nil {
			return Image{}, err
		}
	}

	slog.Info("Imported image", "image", img.Name, "version", img.Version, "path", dest)
	return img, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", store.ErrIO, src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrImageExists, dest)
		}
		return fmt.Errorf("%w: failed to create %s: %w", store.ErrIO, dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("%w: failed to copy %s: %w", store.ErrIO, src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("%w: failed to close %s: %w", store.ErrIO, dest, err)
	}
	return nil
}
