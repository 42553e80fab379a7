// Package preferences persists the reader's typographic preferences and the
// last opened book as a small JSON file.
package preferences

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shelvr/shelvr/pkg/fileutils"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
)

type FontFamily string

const (
	FontSystem       FontFamily = "system"
	FontOriginal     FontFamily = "original"
	FontGeorgia      FontFamily = "georgia"
	FontPalatino     FontFamily = "palatino"
	FontBookerly     FontFamily = "bookerly"
	FontOpenDyslexic FontFamily = "openDyslexic"
)

const (
	MinFontSize    = 12
	MaxFontSize    = 32
	MinLineSpacing = 1.0
	MaxLineSpacing = 2.5
)

type Preferences struct {
	Theme                  Theme      `json:"theme" default:"light" validate:"oneof=light dark sepia"`
	FontSize               int        `json:"font_size" default:"16"`
	FontFamily             FontFamily `json:"font_family" default:"original" validate:"oneof=system original georgia palatino bookerly openDyslexic"`
	LineSpacing            float64    `json:"line_spacing" default:"1.5"`
	ReopenLastBookOnLaunch bool       `json:"reopen_last_book_on_launch"`
	LastOpenedBookID       *string    `json:"last_opened_book_id,omitempty"`
}

// Defaults returns the preferences of a fresh install, taken from the
// struct's default tags.
func Defaults() *Preferences {
	prefs := &Preferences{}
	// Only fails on a malformed tag.
	_ = defaults.Set(prefs)
	return prefs
}

// Clamp pulls font size and line spacing into their allowed ranges.
func (p *Preferences) Clamp() {
	p.FontSize = min(MaxFontSize, max(MinFontSize, p.FontSize))
	p.LineSpacing = min(MaxLineSpacing, max(MinLineSpacing, p.LineSpacing))
}

var validate = validator.New()

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preferences, or the defaults when nothing has been
// saved yet. Out-of-range numbers are clamped and unknown theme or font
// values fall back to their defaults.
func (s *Store) Load(ctx context.Context) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Preferences, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, errors.WithStack(err)
	}

	prefs := Defaults()
	if err := json.Unmarshal(data, prefs); err != nil {
		return nil, errors.Wrapf(err, "invalid preferences file %s", s.path)
	}
	prefs.Clamp()

	if err := validate.Struct(prefs); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fallback := Defaults()
			for _, fe := range verrs {
				logger.FromContext(ctx).Warn("ignoring invalid preference", logger.Data{"field": fe.Field(), "value": fe.Value()})
				switch fe.StructField() {
				case "Theme":
					prefs.Theme = fallback.Theme
				case "FontFamily":
					prefs.FontFamily = fallback.FontFamily
				}
			}
		}
	}

	return prefs, nil
}

// Save clamps and validates prefs and writes them out. The file is replaced
// atomically so a crash never leaves half a file behind.
func (s *Store) Save(ctx context.Context, prefs *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(prefs)
}

func (s *Store) save(prefs *Preferences) error {
	prefs.Clamp()
	if err := validate.Struct(prefs); err != nil {
		return errors.Wrap(err, "invalid preferences")
	}

	if err := fileutils.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	tmp := s.path + ".tmp"
	if err := fileutils.WriteFile(tmp, data); err != nil {
		return err
	}
	return errors.WithStack(os.Rename(tmp, s.path))
}

// Update loads the preferences, applies fn and saves the result as one step.
func (s *Store) Update(ctx context.Context, fn func(p *Preferences)) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	fn(prefs)
	if err := s.save(prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetLastOpenedBook records bookID as the book to reopen on launch.
func (s *Store) SetLastOpenedBook(ctx context.Context, bookID string) error {
	_, err := s.Update(ctx, func(p *Preferences) {
		p.LastOpenedBookID = &bookID
	})
	return err
}

// ForgetBook clears the last opened book if it is bookID.
func (s *Store) ForgetBook(ctx context.Context, bookID string) error {
	_, err := s.Update(ctx, func(p *Preferences) {
		if p.LastOpenedBookID != nil && *p.LastOpenedBookID == bookID {
			p.LastOpenedBookID = nil
		}
	})
	return err
}
