package image

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/barley-project/barley/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, today string) *Catalog {
	t.Helper()
	s, err := store.Ensure(filepath.Join(t.TempDir(), "images"))
	require.NoError(t, err)
	c := NewCatalog(s)
	day, err := time.Parse(versionLayout, today)
	require.NoError(t, err)
	c.now = func() time.Time { return day.Add(12 * time.Hour) }
	return c
}

func touch(t *testing.T, c *Catalog, fileName string) {
	t.Helper()
	require.NoError(t, os.WriteFile(c.store.File(fileName), []byte("archive"), 0644))
}

func writeSource(t *testing.T, fileName, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompareVersions(t *testing.T) {
	assert.Negative(t, CompareVersions("20230101", "20230101.1"))
	assert.Negative(t, CompareVersions("20230101.1", "20230102"))
	assert.Negative(t, CompareVersions("20230101", "20230102"))
	assert.Negative(t, CompareVersions("20230101.2", "20230101.10"))
	assert.Positive(t, CompareVersions("20230101.1", "20230101"))
	assert.Zero(t, CompareVersions("20230101.3", "20230101.3"))
	assert.Negative(t, CompareVersions("", "20230101"))
}

func TestParseFileName(t *testing.T) {
	img, err := ParseFileName("cryptpad_20230101.2.tar.zst")
	require.NoError(t, err)
	assert.Equal(t, Image{Name: "cryptpad", Version: "20230101.2"}, img)

	img, err = ParseFileName("cryptpad.tar.zst")
	require.NoError(t, err)
	assert.Equal(t, Image{Name: "cryptpad"}, img)

	for _, bad := range []string{"cryptpad.tar.gz", "cryptpad", "_20230101.tar.zst", ".tar.zst"} {
		_, err := ParseFileName(bad)
		assert.ErrorIs(t, err, ErrInvalidImage, bad)
	}
}

func TestLatest(t *testing.T) {
	c := newCatalog(t, "20230105")
	touch(t, c, "cryptpad_20230101.tar.zst")
	touch(t, c, "cryptpad_20230101.1.tar.zst")
	touch(t, c, "cryptpad_20230102.tar.zst")
	touch(t, c, "other_20231231.tar.zst")

	img, err := c.Latest("cryptpad")
	require.NoError(t, err)
	assert.Equal(t, "20230102", img.Version)

	_, err = c.Latest("missing")
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestList(t *testing.T) {
	c := newCatalog(t, "20230105")
	touch(t, c, "b_20230101.tar.zst")
	touch(t, c, "a_20230101.10.tar.zst")
	touch(t, c, "a_20230101.2.tar.zst")
	touch(t, c, "README")

	images, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []Image{
		{Name: "a", Version: "20230101.2"},
		{Name: "a", Version: "20230101.10"},
		{Name: "b", Version: "20230101"},
	}, images)
}

func TestGenerateVersion(t *testing.T) {
	c := newCatalog(t, "20230101")

	v, err := c.GenerateVersion("cryptpad")
	require.NoError(t, err)
	assert.Equal(t, "20230101", v)

	touch(t, c, "cryptpad_20230101.tar.zst")
	v, err = c.GenerateVersion("cryptpad")
	require.NoError(t, err)
	assert.Equal(t, "20230101.1", v)

	touch(t, c, "cryptpad_20230101.3.tar.zst")
	v, err = c.GenerateVersion("cryptpad")
	require.NoError(t, err)
	assert.Equal(t, "20230101.4", v)
}

func TestImportGeneratesVersion(t *testing.T) {
	c := newCatalog(t, "20230101")
	src := writeSource(t, "cryptpad.tar.zst", "v1")

	img, err := c.Import(src)
	require.NoError(t, err)
	assert.Equal(t, Image{Name: "cryptpad", Version: "20230101"}, img)

	data, err := os.ReadFile(c.Path(img))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	img, err = c.Import(src)
	require.NoError(t, err)
	assert.Equal(t, "20230101.1", img.Version)
}

func TestImportInvalidName(t *testing.T) {
	c := newCatalog(t, "20230101")
	src := writeSource(t, "cryptpad.tgz", "x")

	_, err := c.Import(src)
	assert.ErrorIs(t, err, ErrInvalidImage)

	entries, err := c.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportExistingVersion(t *testing.T) {
	c := newCatalog(t, "20230101")
	touch(t, c, "cryptpad_20221212.tar.zst")
	src := writeSource(t, "cryptpad_20221212.tar.zst", "new")

	_, err := c.Import(src)
	assert.ErrorIs(t, err, ErrImageExists)

	data, err := os.ReadFile(c.Path(Image{Name: "cryptpad", Version: "20221212"}))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
}

func TestImportMissingSource(t *testing.T) {
	c := newCatalog(t, "20230101")

	_, err := c.Import(filepath.Join(t.TempDir(), "cryptpad.tar.zst"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
