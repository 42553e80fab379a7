package library

import (
	"context"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/epub"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/fileutils"
	"github.com/shelvr/shelvr/pkg/metadata"
)

const maxTitleLength = 500

// PickedFile is a file chosen for import. Size is what the picker reported;
// it is recorded as-is.
type PickedFile struct {
	Path string
	// Name is the original file name, Path's base name when empty.
	Name string
	Size int64
}

type ImportResult struct {
	Book     *books.Book
	Warnings []string
}

type Importer struct {
	cfg      *config.Config
	metadata *metadata.Service
	copyFile func(src, dst string) error
}

func NewImporter(cfg *config.Config, metadataService *metadata.Service) *Importer {
	return &Importer{cfg: cfg, metadata: metadataService, copyFile: fileutils.CopyFile}
}

// ImportFile copies file into the books directory under a fresh id, extracts
// its metadata and cover, and assembles the Book. It does not insert the
// Book. Every failure is an *errcodes.Error.
//
// Each call mints a new id, so importing the same file twice yields two
// books.
func (imp *Importer) ImportFile(ctx context.Context, file PickedFile) (*ImportResult, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"source_path": file.Path})

	validation, err := imp.metadata.Validate(ctx, file.Path)
	if err != nil {
		return nil, err
	}

	if err := fileutils.EnsureDir(imp.cfg.BooksDir()); err != nil {
		return nil, errcodes.Wrap(errcodes.CodeUnknownError, err, "create books directory")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errcodes.Wrap(errcodes.CodeUnknownError, err, "generate book id")
	}
	bookID := id.String()
	log = log.Data(logger.Data{"book_id": bookID})

	name := file.Name
	if name == "" {
		name = filepath.Base(file.Path)
	}
	bookDir := filepath.Join(imp.cfg.BooksDir(), bookID)
	destination := filepath.Join(bookDir, fileutils.SanitizeFilename(name))

	log.Debug("copying file", logger.Data{"destination": destination})
	if err := fileutils.EnsureDir(bookDir); err != nil {
		return nil, errcodes.Wrap(errcodes.CodeUnknownError, err, "create book directory")
	}
	if err := imp.copyFile(file.Path, destination); err != nil {
		imp.removeBookDir(ctx, bookDir)
		return nil, errcodes.Wrap(errcodes.CodeUnknownError, err, "copy file to app storage")
	}
	if !fileutils.Exists(destination) {
		imp.removeBookDir(ctx, bookDir)
		return nil, errcodes.New(errcodes.CodeUnknownError, "copied file is missing from app storage")
	}

	md := imp.metadata.Extract(ctx, destination)
	coverPath := imp.saveCover(ctx, bookID, md)

	now := time.Now().UnixMilli()
	book := &books.Book{
		ID:            bookID,
		Title:         truncate(md.Title, maxTitleLength),
		Description:   optional(md.Description),
		CoverPath:     coverPath,
		FilePath:      destination,
		Source:        books.LocalSource{},
		PublishedDate: optional(md.PublishedDate),
		Language:      optional(md.Language),
		Series:        optional(md.Series),
		SeriesIndex:   md.SeriesIndex,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(md.Authors) > 0 {
		book.Authors = books.Authors(md.Authors)
	}
	if file.Size > 0 {
		size := file.Size
		book.FileSize = &size
	}

	log.Info("book imported", logger.Data{"title": book.Title})
	return &ImportResult{Book: book, Warnings: validation.Warnings}, nil
}

// removeBookDir drops the per-book directory of an import that never got a
// file into it.
func (imp *Importer) removeBookDir(ctx context.Context, bookDir string) {
	if err := fileutils.RemoveAll(bookDir); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to remove book directory", logger.Data{"path": bookDir})
	}
}

// saveCover writes the extracted cover to <covers>/<id>.<ext>. A failure is
// logged and the book is imported without a cover.
func (imp *Importer) saveCover(ctx context.Context, bookID string, md *epub.Metadata) *string {
	if !md.HasCover() {
		return nil
	}
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": bookID})

	if err := fileutils.EnsureDir(imp.cfg.CoversDir()); err != nil {
		log.Err(err).Warn("failed to create covers directory")
		return nil
	}

	coverPath := filepath.Join(imp.cfg.CoversDir(), bookID+"."+fileutils.CoverExtension(md.CoverMimeType))
	if err := fileutils.WriteFile(coverPath, md.CoverData); err != nil {
		log.Err(err).Warn("failed to save cover image")
		return nil
	}

	log.Debug("saved cover image", logger.Data{"cover_path": coverPath})
	return &coverPath
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
