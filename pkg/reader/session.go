// Package reader tracks an open book: where reading resumes, the cached
// pagination table, and debounced persistence of the reading position.
package reader

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/locations"
	"github.com/shelvr/shelvr/pkg/preferences"
)

type Service struct {
	cfg       *config.Config
	books     *books.Service
	locations *locations.Cache
	prefs     *preferences.Store
	clock     Clock
}

func NewService(cfg *config.Config, bookService *books.Service, cache *locations.Cache, prefs *preferences.Store) *Service {
	return &Service{
		cfg:       cfg,
		books:     bookService,
		locations: cache,
		prefs:     prefs,
		clock:     SystemClock,
	}
}

type OpenOptions struct {
	// OnSaved is called after each persisted progress write, e.g. to refresh
	// the in-memory library state.
	OnSaved func(progress *books.ReadingProgress)
}

// Session is one open book. It is discarded on Close.
type Session struct {
	Book *books.Book
	// InitialLocation is the CFI to resume at, empty to start at the
	// beginning.
	InitialLocation string
	// InitialLocations is the cached pagination table, nil on a miss.
	InitialLocations []string

	tracker   *Tracker
	locations *locations.Cache
}

// Open loads bookID with its progress and cached locations and records it as
// the last opened book. Only a missing book or a failed lookup is an error.
func (svc *Service) Open(ctx context.Context, bookID string, opts OpenOptions) (*Session, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": bookID})

	book, err := svc.books.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &bookID})
	if err != nil {
		return nil, err
	}

	progress, err := svc.books.RetrieveReadingProgress(ctx, bookID)
	if err != nil {
		return nil, err
	}

	tracker := NewTracker(ctx, bookID, svc.books, TrackerOptions{
		Debounce:     svc.cfg.ProgressDebounce,
		MinDelta:     svc.cfg.ProgressMinDelta,
		FlushOnClose: svc.cfg.ProgressFlushOnClose,
		Clock:        svc.clock,
		OnSaved:      opts.OnSaved,
	})
	tracker.Resume(progress)

	session := &Session{
		Book:      book,
		tracker:   tracker,
		locations: svc.locations,
	}
	if progress != nil && progress.CFI != nil {
		session.InitialLocation = *progress.CFI
	}
	if locs, ok := svc.locations.Load(ctx, bookID); ok {
		session.InitialLocations = locs
	}

	if svc.prefs != nil {
		if err := svc.prefs.SetLastOpenedBook(ctx, bookID); err != nil {
			log.Err(err).Warn("failed to record last opened book")
		}
	}

	log.Info("opened book", logger.Data{
		"has_progress":     progress != nil,
		"cached_locations": len(session.InitialLocations),
	})
	return session, nil
}

func (s *Session) OnLocationEvent(ev LocationEvent) {
	s.tracker.OnLocationEvent(ev)
}

// Position is the current display state: CFI, percentage and chapter title.
func (s *Session) Position() Position {
	return s.tracker.Position()
}

// LocationsReady caches the pagination table the engine just computed.
func (s *Session) LocationsReady(ctx context.Context, locs []string) {
	logger.FromContext(ctx).Info("caching generated locations", logger.Data{"book_id": s.Book.ID, "count": len(locs)})
	s.locations.Save(ctx, s.Book.ID, locs)
}

// Close ends the session; see Tracker.Close for what happens to a pending
// write.
func (s *Session) Close() {
	s.tracker.Close()
}
