package books

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListReadingProgressOptions struct {
	BookIDs []string
	Limit   *int
}

// RetrieveReadingProgress returns the progress of a book, or nil when the
// book has never been read.
func (svc *Service) RetrieveReadingProgress(ctx context.Context, bookID string) (*ReadingProgress, error) {
	progress := &ReadingProgress{}
	err := svc.db.
		NewSelect().
		Model(progress).
		Where("rp.book_id = ?", bookID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return progress, nil
}

// ListReadingProgress returns progress rows, most recently read first.
func (svc *Service) ListReadingProgress(ctx context.Context, opts ListReadingProgressOptions) ([]*ReadingProgress, error) {
	progress := []*ReadingProgress{}

	q := svc.db.
		NewSelect().
		Model(&progress).
		Order("rp.last_read_at DESC")

	if len(opts.BookIDs) > 0 {
		q = q.Where("rp.book_id IN (?)", bun.In(opts.BookIDs))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return progress, nil
}

// UpsertReadingProgress inserts the progress row for progress.BookID or
// replaces the existing one in a single statement. LastReadAt defaults to now.
func (svc *Service) UpsertReadingProgress(ctx context.Context, progress *ReadingProgress) error {
	if progress.LastReadAt == 0 {
		progress.LastReadAt = nowMillis()
	}
	if err := svc.validate.Struct(progress); err != nil {
		return errors.Wrap(err, "invalid reading progress")
	}

	_, err := svc.db.
		NewInsert().
		Model(progress).
		On("CONFLICT (book_id) DO UPDATE").
		Set("cfi = EXCLUDED.cfi").
		Set("percentage = EXCLUDED.percentage").
		Set("chapter = EXCLUDED.chapter").
		Set("chapter_title = EXCLUDED.chapter_title").
		Set("last_read_at = EXCLUDED.last_read_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
