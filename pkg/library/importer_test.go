package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shelvr/shelvr/internal/testgen"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImporter(t *testing.T) (*Importer, *config.Config) {
	t.Helper()
	cfg := config.NewForTest()
	cfg.StorageDir = t.TempDir()
	return NewImporter(cfg, metadata.NewService(cfg)), cfg
}

func TestImportFile_NotAZip(t *testing.T) {
	t.Parallel()

	importer, cfg := newTestImporter(t)
	src := testgen.WriteSizedFile(t, t.TempDir(), "My_Book.epub", 2500)

	result, err := importer.ImportFile(context.Background(), PickedFile{Path: src, Size: 2500})
	require.NoError(t, err)

	book := result.Book
	assert.Equal(t, "My Book", book.Title)
	assert.Empty(t, book.Authors)
	require.NotNil(t, book.FileSize)
	assert.Equal(t, int64(2500), *book.FileSize)
	assert.Nil(t, book.CoverPath)
	assert.Equal(t, books.LocalSource{}, book.Source)
	assert.Equal(t, book.CreatedAt, book.UpdatedAt)
	assert.Contains(t, result.Warnings, metadata.WarningNotZip)

	assert.Equal(t, filepath.Join(cfg.BooksDir(), book.ID, "My_Book.epub"), book.FilePath)
	assert.True(t, testgen.FileExists(book.FilePath))
	assert.Equal(t, testgen.ReadFile(t, src), testgen.ReadFile(t, book.FilePath))
}

func TestImportFile_FullMetadata(t *testing.T) {
	t.Parallel()

	importer, cfg := newTestImporter(t)
	src := testgen.GenerateEPUB(t, t.TempDir(), "source.epub", testgen.EPUBOptions{
		Title:         "The Dispossessed",
		Authors:       []string{"Ursula K. Le Guin"},
		Description:   "<p>An <b>ambiguous</b> utopia.</p>",
		Language:      "en",
		PublishedDate: "1974",
		Series:        "Hainish Cycle",
		SeriesNumber:  floatPtr(5),
		HasCover:      true,
		CoverMimeType: "image/png",
	})

	result, err := importer.ImportFile(context.Background(), PickedFile{Path: src, Name: "Le Guin: The Dispossessed.epub", Size: 4321})
	require.NoError(t, err)

	book := result.Book
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "The Dispossessed", book.Title)
	assert.Equal(t, books.Authors{"Ursula K. Le Guin"}, book.Authors)
	assert.Equal(t, "An ambiguous utopia.", *book.Description)
	assert.Equal(t, "en", *book.Language)
	assert.Equal(t, "1974", *book.PublishedDate)
	assert.Equal(t, "Hainish Cycle", *book.Series)
	assert.InDelta(t, 5.0, *book.SeriesIndex, 0.0001)
	assert.Equal(t, int64(4321), *book.FileSize)
	assert.Equal(t, "Le_Guin__The_Dispossessed.epub", filepath.Base(book.FilePath))

	require.NotNil(t, book.CoverPath)
	assert.Equal(t, filepath.Join(cfg.CoversDir(), book.ID+".png"), *book.CoverPath)
	assert.Equal(t, testgen.GenerateImage(t, "image/png"), testgen.ReadFile(t, *book.CoverPath))
}

func TestImportFile_JPEGCover(t *testing.T) {
	t.Parallel()

	importer, _ := newTestImporter(t)
	src := testgen.GenerateEPUB(t, t.TempDir(), "jpeg.epub", testgen.EPUBOptions{
		Title:         "Photos",
		HasCover:      true,
		CoverMimeType: "image/jpeg",
		CoverStrategy: testgen.CoverByProperties,
	})

	result, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	require.NoError(t, err)
	require.NotNil(t, result.Book.CoverPath)
	assert.Equal(t, ".jpg", filepath.Ext(*result.Book.CoverPath))
	assert.Nil(t, result.Book.FileSize)
}

func TestImportFile_CoverWriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	importer, cfg := newTestImporter(t)
	// A file where the covers directory should be makes the cover write fail.
	require.NoError(t, os.MkdirAll(cfg.StorageDir, 0755))
	require.NoError(t, os.WriteFile(cfg.CoversDir(), []byte("in the way"), 0644))

	src := testgen.GenerateEPUB(t, t.TempDir(), "cover.epub", testgen.EPUBOptions{
		Title:    "Coverless",
		HasCover: true,
	})

	result, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	require.NoError(t, err)
	assert.Equal(t, "Coverless", result.Book.Title)
	assert.Nil(t, result.Book.CoverPath)
}

func TestImportFile_CopyFailureRemovesBookDir(t *testing.T) {
	t.Parallel()

	importer, cfg := newTestImporter(t)
	importer.copyFile = func(src, dst string) error {
		return errors.New("disk full")
	}
	src := testgen.GenerateEPUB(t, t.TempDir(), "book.epub", testgen.EPUBOptions{Title: "Unlucky"})

	_, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	var e *errcodes.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errcodes.CodeUnknownError, e.Code)

	entries, err := os.ReadDir(cfg.BooksDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportFile_ValidationFailureStops(t *testing.T) {
	t.Parallel()

	importer, cfg := newTestImporter(t)
	src := testgen.WriteSizedFile(t, t.TempDir(), "tiny.epub", 500)

	_, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	var e *errcodes.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errcodes.CodeFileTooSmall, e.Code)
	assert.False(t, testgen.FileExists(cfg.BooksDir()))
}

func TestImportFile_DuplicatesGetDistinctIDs(t *testing.T) {
	t.Parallel()

	importer, _ := newTestImporter(t)
	src := testgen.GenerateEPUB(t, t.TempDir(), "twice.epub", testgen.EPUBOptions{Title: "Twice"})

	first, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	require.NoError(t, err)
	second, err := importer.ImportFile(context.Background(), PickedFile{Path: src})
	require.NoError(t, err)

	assert.NotEqual(t, first.Book.ID, second.Book.ID)
	assert.NotEqual(t, first.Book.FilePath, second.Book.FilePath)
	assert.True(t, testgen.FileExists(first.Book.FilePath))
	assert.True(t, testgen.FileExists(second.Book.FilePath))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "éé", truncate("ééé", 2))
}

func floatPtr(f float64) *float64 {
	return &f
}
