// Package library imports EPUB files into durable storage and keeps the
// in-memory library in step with the database.
package library

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/fileutils"
	"github.com/shelvr/shelvr/pkg/locations"
	"github.com/shelvr/shelvr/pkg/preferences"
)

type Service struct {
	cfg       *config.Config
	books     *books.Service
	importer  *Importer
	locations *locations.Cache
	prefs     *preferences.Store
	state     *State
}

func NewService(cfg *config.Config, bookService *books.Service, importer *Importer, cache *locations.Cache, prefs *preferences.Store) *Service {
	return &Service{
		cfg:       cfg,
		books:     bookService,
		importer:  importer,
		locations: cache,
		prefs:     prefs,
		state:     NewState(),
	}
}

func (svc *Service) State() *State {
	return svc.state
}

type LoadOptions struct {
	// Source limits the library to books from one source, e.g. books.SourceKomga.
	Source        *string
	KomgaServerID *string
}

// Load reads the books selected by opts, with their progress, into the
// in-memory state.
func (svc *Service) Load(ctx context.Context, opts LoadOptions) error {
	list, err := svc.books.ListBooks(ctx, books.ListBooksOptions{
		Source:        opts.Source,
		KomgaServerID: opts.KomgaServerID,
	})
	if err != nil {
		return err
	}
	progress, err := svc.books.ListReadingProgress(ctx, books.ListReadingProgressOptions{})
	if err != nil {
		return err
	}
	svc.state.Replace(list, progress)
	logger.FromContext(ctx).Info("library loaded", logger.Data{"count": len(list)})
	return nil
}

// Import runs the import pipeline and adds the resulting book. When the
// insert fails, the copied file and cover are removed again.
func (svc *Service) Import(ctx context.Context, file PickedFile) (*ImportResult, error) {
	result, err := svc.importer.ImportFile(ctx, file)
	if err != nil {
		return nil, err
	}

	if err := svc.Add(ctx, result.Book); err != nil {
		svc.removeFiles(ctx, result.Book)
		var e *errcodes.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, errcodes.Wrap(errcodes.CodeUnknownError, err, "save book")
	}
	return result, nil
}

// Add inserts book and puts it at the front of the library.
func (svc *Service) Add(ctx context.Context, book *books.Book) error {
	if err := svc.books.CreateBook(ctx, book); err != nil {
		return err
	}
	svc.state.Add(book)
	return nil
}

// Update writes the named columns of book and moves it to the front of the
// library.
func (svc *Service) Update(ctx context.Context, book *books.Book, columns ...string) error {
	if err := svc.books.UpdateBook(ctx, book, books.UpdateBookOptions{Columns: columns}); err != nil {
		return err
	}
	svc.state.Update(book)
	logger.FromContext(ctx).Info("book updated", logger.Data{"book_id": book.ID, "columns": columns})
	return nil
}

// SetProgress reflects a persisted progress write in the in-memory state.
func (svc *Service) SetProgress(progress *books.ReadingProgress) {
	svc.state.SetProgress(progress)
}

// Remove deletes a book, its progress and its cached locations. With
// deleteFile the EPUB and cover are removed from storage too; otherwise they
// are left in place, detached from the library.
func (svc *Service) Remove(ctx context.Context, id string, deleteFile bool) error {
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": id})

	book, err := svc.books.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &id})
	if err != nil {
		return err
	}

	if err := svc.books.DeleteBook(ctx, id); err != nil {
		return err
	}

	svc.locations.Remove(ctx, id)
	if svc.prefs != nil {
		if err := svc.prefs.ForgetBook(ctx, id); err != nil {
			log.Err(err).Warn("failed to clear last opened book")
		}
	}
	svc.state.Remove(id)

	if deleteFile {
		svc.removeFiles(ctx, book)
	}

	log.Info("book removed", logger.Data{"delete_file": deleteFile})
	return nil
}

// Search filters the in-memory library by title or author.
func (svc *Service) Search(query string) []BookWithProgress {
	return svc.state.Search(query)
}

// removeFiles deletes the stored EPUB and cover of book. Failures are
// logged; the files are then simply orphaned.
func (svc *Service) removeFiles(ctx context.Context, book *books.Book) {
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": book.ID})

	// Only the per-book directory the importer created is removed whole.
	bookDir := filepath.Join(svc.cfg.BooksDir(), book.ID)
	target := book.FilePath
	if filepath.Dir(book.FilePath) == bookDir {
		target = bookDir
	}
	if err := fileutils.RemoveAll(target); err != nil {
		log.Err(err).Warn("failed to remove book file", logger.Data{"path": target})
	}

	if err := fileutils.RemoveCovers(svc.cfg.CoversDir(), book.ID); err != nil {
		log.Err(err).Warn("failed to remove cover")
	}
}
