package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shelvr/shelvr/internal/testgen"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/database"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/locations"
	"github.com/shelvr/shelvr/pkg/metadata"
	"github.com/shelvr/shelvr/pkg/migrations"
	"github.com/shelvr/shelvr/pkg/preferences"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	cfg   *config.Config
	svc   *Service
	books *books.Service
	cache *locations.Cache
	prefs *preferences.Store
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	ctx := context.Background()

	cfg := config.NewForTest()
	cfg.StorageDir = t.TempDir()

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)

	cache, err := locations.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	bookService := books.NewService(db)
	prefs := preferences.NewStore(filepath.Join(cfg.StorageDir, "preferences.json"))
	importer := NewImporter(cfg, metadata.NewService(cfg))

	return &testContext{
		cfg:   cfg,
		svc:   NewService(cfg, bookService, importer, cache, prefs),
		books: bookService,
		cache: cache,
		prefs: prefs,
	}
}

func (tc *testContext) importBook(t *testing.T, title string) *books.Book {
	t.Helper()
	src := testgen.GenerateEPUB(t, t.TempDir(), "book.epub", testgen.EPUBOptions{
		Title:    title,
		Authors:  []string{"Test Author"},
		HasCover: true,
	})
	result, err := tc.svc.Import(context.Background(), PickedFile{Path: src, Size: 1234})
	require.NoError(t, err)
	return result.Book
}

func TestImport_PersistsAndAddsToState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	book := tc.importBook(t, "Imported")

	stored, err := tc.books.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &book.ID})
	require.NoError(t, err)
	assert.Equal(t, "Imported", stored.Title)
	assert.Equal(t, books.Authors{"Test Author"}, stored.Authors)
	assert.Equal(t, *book.CoverPath, *stored.CoverPath)

	inState, ok := tc.svc.State().Get(book.ID)
	require.True(t, ok)
	assert.Equal(t, "Imported", inState.Title)
}

func TestImport_InvalidFile(t *testing.T) {
	t.Parallel()

	tc := newTestContext(t)
	src := testgen.WriteSizedFile(t, t.TempDir(), "notes.txt", 5000)

	_, err := tc.svc.Import(context.Background(), PickedFile{Path: src})
	require.Error(t, err)
	assert.Equal(t, errcodes.Message(errcodes.CodeInvalidExtension), err.Error())
	assert.Zero(t, tc.svc.State().Len())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	first := tc.importBook(t, "First")
	second := tc.importBook(t, "Second")
	require.NoError(t, tc.books.UpsertReadingProgress(ctx, &books.ReadingProgress{BookID: first.ID, Percentage: 0.3}))

	fresh := NewService(tc.cfg, tc.books, nil, tc.cache, tc.prefs)
	require.NoError(t, fresh.Load(ctx, LoadOptions{}))

	list := fresh.State().Books()
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	got, ok := fresh.State().Get(first.ID)
	require.True(t, ok)
	require.NotNil(t, got.Progress)
	assert.InDelta(t, 0.3, got.Progress.Percentage, 0.0001)
}

func TestLoad_BySource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	local := tc.importBook(t, "Local")
	remote := &books.Book{
		Title:    "Remote",
		FilePath: "/komga/remote.epub",
		Source:   books.KomgaSource{BookID: "k-1", ServerID: "srv"},
	}
	require.NoError(t, tc.books.CreateBook(ctx, remote))

	komga := books.SourceKomga
	require.NoError(t, tc.svc.Load(ctx, LoadOptions{Source: &komga}))
	list := tc.svc.State().Books()
	require.Len(t, list, 1)
	assert.Equal(t, remote.ID, list[0].ID)

	other := "other"
	require.NoError(t, tc.svc.Load(ctx, LoadOptions{Source: &komga, KomgaServerID: &other}))
	assert.Zero(t, tc.svc.State().Len())

	require.NoError(t, tc.svc.Load(ctx, LoadOptions{}))
	assert.Equal(t, 2, tc.svc.State().Len())
	_, ok := tc.svc.State().Get(local.ID)
	assert.True(t, ok)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	first := tc.importBook(t, "First")
	tc.importBook(t, "Second")

	first.Title = "First, Revised"
	first.Authors = books.Authors{"New Author"}
	require.NoError(t, tc.svc.Update(ctx, first, "title", "authors"))

	stored, err := tc.books.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, "First, Revised", stored.Title)
	assert.Equal(t, books.Authors{"New Author"}, stored.Authors)

	list := tc.svc.State().Books()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "First, Revised", list[0].Title)

	first.Title = ""
	assert.Error(t, tc.svc.Update(ctx, first, "title"))
}

func TestRemove_KeepsFileByDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	book := tc.importBook(t, "Detached")
	tc.cache.Save(ctx, book.ID, []string{"a"})
	require.NoError(t, tc.prefs.SetLastOpenedBook(ctx, book.ID))

	require.NoError(t, tc.svc.Remove(ctx, book.ID, false))

	_, err := tc.books.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &book.ID})
	assert.True(t, errcodes.IsNotFound(err))
	_, ok := tc.cache.Load(ctx, book.ID)
	assert.False(t, ok)
	_, ok = tc.svc.State().Get(book.ID)
	assert.False(t, ok)

	prefs, err := tc.prefs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, prefs.LastOpenedBookID)

	assert.True(t, testgen.FileExists(book.FilePath))
	assert.True(t, testgen.FileExists(*book.CoverPath))
}

func TestRemove_DeletesFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	book := tc.importBook(t, "Deleted")
	require.NoError(t, tc.books.UpsertReadingProgress(ctx, &books.ReadingProgress{BookID: book.ID, Percentage: 0.8}))

	require.NoError(t, tc.svc.Remove(ctx, book.ID, true))

	assert.False(t, testgen.FileExists(book.FilePath))
	assert.False(t, testgen.FileExists(filepath.Dir(book.FilePath)))
	assert.False(t, testgen.FileExists(*book.CoverPath))
	assert.True(t, testgen.FileExists(tc.cfg.BooksDir()))

	progress, err := tc.books.RetrieveReadingProgress(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, progress)
}

func TestRemove_Missing(t *testing.T) {
	t.Parallel()

	tc := newTestContext(t)
	err := tc.svc.Remove(context.Background(), "missing", true)
	assert.True(t, errcodes.IsNotFound(err))
}

func TestRemove_FileOutsideBooksDirIsRemovedAlone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tc := newTestContext(t)

	dir := t.TempDir()
	path := testgen.WriteSizedFile(t, dir, "elsewhere.epub", 2000)
	sibling := testgen.WriteSizedFile(t, dir, "sibling.txt", 10)

	book := &books.Book{Title: "Elsewhere", FilePath: path}
	require.NoError(t, tc.svc.Add(ctx, book))
	require.NoError(t, tc.svc.Remove(ctx, book.ID, true))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, testgen.FileExists(sibling))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	tc := newTestContext(t)
	tc.importBook(t, "Middlemarch")
	tc.importBook(t, "Silas Marner")

	assert.Len(t, tc.svc.Search("march"), 1)
	assert.Len(t, tc.svc.Search("test author"), 2)
	assert.Len(t, tc.svc.Search(""), 2)
}
