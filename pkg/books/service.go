package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID       *string
	FilePath *string
}

type ListBooksOptions struct {
	Limit         *int
	Offset        *int
	Source        *string
	KomgaServerID *string
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	db       *bun.DB
	validate *validator.Validate
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, validate: validator.New()}
}

// nowMillis is the timestamp unit of every stored time.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (svc *Service) validateBook(book *Book) error {
	if err := svc.validate.Struct(book); err != nil {
		return errors.Wrap(err, "invalid book")
	}
	if src, ok := book.Source.(KomgaSource); ok {
		if err := svc.validate.Struct(src); err != nil {
			return errors.Wrap(err, "invalid komga source")
		}
	}
	return nil
}

func (svc *Service) CreateBook(ctx context.Context, book *Book) error {
	if book.CreatedAt == 0 {
		book.CreatedAt = nowMillis()
	}
	if book.UpdatedAt < book.CreatedAt {
		book.UpdatedAt = book.CreatedAt
	}

	if book.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return errors.WithStack(err)
		}
		book.ID = id.String()
	}

	if err := svc.validateBook(book); err != nil {
		return err
	}

	_, err := svc.db.
		NewInsert().
		Model(book).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*Book, error) {
	book := &Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.FilePath != nil {
		q = q.Where("b.file_path = ?", *opts.FilePath)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

// ListBooks returns books most recently updated first.
func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*Book, error) {
	books := []*Book{}

	q := svc.db.
		NewSelect().
		Model(&books).
		Order("b.updated_at DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Source != nil {
		q = q.Where("b.source = ?", *opts.Source)
	}
	if opts.KomgaServerID != nil {
		q = q.Where("b.komga_server_id = ?", *opts.KomgaServerID)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchBooks matches query as a substring of the title or of the stored
// author list, most recently updated first. SQLite's LIKE ignores ASCII case.
func (svc *Service) SearchBooks(ctx context.Context, query string) ([]*Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return svc.ListBooks(ctx, ListBooksOptions{})
	}

	pattern := "%" + likeEscaper.Replace(query) + "%"
	books := []*Book{}
	err := svc.db.
		NewSelect().
		Model(&books).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`b.title LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`b.authors LIKE ? ESCAPE '\'`, pattern)
		}).
		Order("b.updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// UpdateBook writes the named columns and always bumps updated_at, which never
// moves backwards.
func (svc *Service) UpdateBook(ctx context.Context, book *Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if err := svc.validateBook(book); err != nil {
		return err
	}

	now := nowMillis()
	if now <= book.UpdatedAt {
		now = book.UpdatedAt + 1
	}
	previous := book.UpdatedAt
	book.UpdatedAt = now

	columns := append(append([]string{}, opts.Columns...), "updated_at")
	res, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		book.UpdatedAt = previous
		return errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		book.UpdatedAt = previous
		return errcodes.NotFound("Book")
	}

	return nil
}

// DeleteBook removes the book row. Its reading progress goes with it through
// the foreign key cascade.
func (svc *Service) DeleteBook(ctx context.Context, id string) error {
	res, err := svc.db.
		NewDelete().
		Model((*Book)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Book")
	}
	return nil
}
