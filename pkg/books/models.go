package books

import (
	"context"
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	SourceLocal = "local"
	SourceKomga = "komga"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID            string   `bun:",pk" json:"id" validate:"required,uuid4"`
	Title         string   `bun:",notnull" json:"title" validate:"required,min=1,max=500"`
	Authors       Authors  `json:"authors,omitempty"`
	Description   *string  `json:"description,omitempty"`
	CoverPath     *string  `json:"cover_path,omitempty"`
	FilePath      string   `bun:",notnull" json:"file_path" validate:"required"`
	FileSize      *int64   `json:"file_size,omitempty" validate:"omitempty,gt=0"`
	PageCount     *int     `json:"page_count,omitempty" validate:"omitempty,gt=0"`
	PublishedDate *string  `json:"published_date,omitempty"`
	Language      *string  `json:"language,omitempty"`
	Series        *string  `json:"series,omitempty"`
	SeriesIndex   *float64 `json:"series_index,omitempty"`
	CreatedAt     int64    `bun:",notnull" json:"created_at"`
	UpdatedAt     int64    `bun:",notnull" json:"updated_at"`

	// Source says where the book came from. A nil Source is treated as local.
	Source Source `bun:"-" json:"-"`

	// Storage columns for Source; kept in sync by the model hooks.
	SourceName    string  `bun:"source,notnull" json:"source"`
	KomgaBookID   *string `json:"komga_book_id,omitempty"`
	KomgaServerID *string `json:"komga_server_id,omitempty"`
}

var (
	_ bun.BeforeAppendModelHook = (*Book)(nil)
	_ bun.AfterScanRowHook      = (*Book)(nil)
)

// BeforeAppendModel flattens Source into its storage columns.
func (b *Book) BeforeAppendModel(_ context.Context, _ bun.Query) error {
	b.flattenSource()
	return nil
}

// AfterScanRow rebuilds Source from its storage columns.
func (b *Book) AfterScanRow(_ context.Context) error {
	switch b.SourceName {
	case SourceKomga:
		b.Source = KomgaSource{BookID: deref(b.KomgaBookID), ServerID: deref(b.KomgaServerID)}
	default:
		b.Source = LocalSource{}
	}
	return nil
}

func (b *Book) flattenSource() {
	switch src := b.Source.(type) {
	case KomgaSource:
		b.SourceName = SourceKomga
		b.KomgaBookID = &src.BookID
		b.KomgaServerID = &src.ServerID
	default:
		b.SourceName = SourceLocal
		b.KomgaBookID = nil
		b.KomgaServerID = nil
	}
}

// AuthorLine joins the authors for display, e.g. "A, B".
func (b *Book) AuthorLine() string {
	return strings.Join(b.Authors, ", ")
}

type ReadingProgress struct {
	bun.BaseModel `bun:"table:reading_progress,alias:rp"`

	ID           int64   `bun:",pk,autoincrement" json:"id"`
	BookID       string  `bun:",notnull" json:"book_id" validate:"required"`
	CFI          *string `bun:"cfi" json:"cfi,omitempty"`
	Percentage   float64 `bun:",notnull" json:"percentage" validate:"gte=0,lte=1"`
	Chapter      *string `json:"chapter,omitempty"`
	ChapterTitle *string `json:"chapter_title,omitempty"`
	LastReadAt   int64   `bun:",notnull" json:"last_read_at"`
}

// Authors is an ordered author list stored as a JSON array. An empty list is
// stored as NULL.
type Authors []string

func (a Authors) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return string(b), nil
}

// Scan accepts a JSON array. Legacy rows holding a bare name are read as a
// single author rather than failing the whole row.
func (a *Authors) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.Errorf("authors: unsupported column type %T", src)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		*a = nil
		return nil
	}

	var names []string
	if err := json.Unmarshal([]byte(trimmed), &names); err != nil {
		*a = Authors{trimmed}
		return nil
	}
	if len(names) == 0 {
		*a = nil
		return nil
	}
	*a = names
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
