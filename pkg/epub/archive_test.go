package epub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shelvr/shelvr/internal/testgen"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBytes_NotAZip(t *testing.T) {
	t.Parallel()

	_, err := OpenBytes([]byte("this is definitely not a zip archive"))
	require.Error(t, err)

	var e *errcodes.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errcodes.CodeCorruptedArchive, e.Code)
	assert.False(t, e.Recoverable)
}

func TestArchive_ReadText(t *testing.T) {
	t.Parallel()

	data := testgen.ZipEntries(t, map[string][]byte{
		"mimetype":             []byte("application/epub+zip"),
		"OEBPS/Content.opf":    append([]byte{0xEF, 0xBB, 0xBF}, []byte("<package/>")...),
		"OEBPS/images/a b.png": []byte("png"),
	})
	a, err := OpenBytes(data)
	require.NoError(t, err)
	defer a.Close()

	t.Run("strips byte order mark", func(t *testing.T) {
		text, err := a.ReadText("OEBPS/Content.opf")
		require.NoError(t, err)
		assert.Equal(t, "<package/>", text)
	})

	t.Run("falls back to case-insensitive lookup", func(t *testing.T) {
		text, err := a.ReadText("oebps/content.OPF")
		require.NoError(t, err)
		assert.Equal(t, "<package/>", text)
	})

	t.Run("leading slash is ignored", func(t *testing.T) {
		_, err := a.ReadBinary("/OEBPS/images/a b.png")
		assert.NoError(t, err)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := a.ReadBinary("OEBPS/nope.xhtml")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEntryNotFound))
	})
}

func TestArchive_Entries(t *testing.T) {
	t.Parallel()

	a, err := OpenBytes(testgen.ZipEntries(t, map[string][]byte{
		"b.txt":   []byte("b"),
		"a.txt":   []byte("a"),
		"dir/c.x": []byte("c"),
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "dir/c.x"}, a.Entries())
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenFile(filepath.Join(dir, "missing.epub"))
		var e *errcodes.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, errcodes.CodeFileNotFound, e.Code)
	})

	t.Run("valid file", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "book.epub", testgen.EPUBOptions{Title: "Book"})
		a, err := OpenFile(path)
		require.NoError(t, err)
		assert.Contains(t, a.Entries(), ContainerPath)
		require.NoError(t, a.Close())
	})

	t.Run("garbage file", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.epub")
		require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0600))
		_, err := OpenFile(path)
		var e *errcodes.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, errcodes.CodeCorruptedArchive, e.Code)
	})
}
