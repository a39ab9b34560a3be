package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PlaceSearcher drives the sidebar village search: queries are debounced, only
// one lookup is in flight at a time, and a newer query cancels the older one
// so a slow earlier response can never overwrite newer suggestions.
type PlaceSearcher struct {
	geocoder Geocoder
	log      *slog.Logger
	debounce time.Duration
	recent   *RecentSearches

	mu          sync.Mutex
	timer       *time.Timer
	cancel      context.CancelFunc
	generation  uint64
	suggestions []Place
	onUpdate    func([]Place)
}

func NewPlaceSearcher(geocoder Geocoder, recent *RecentSearches, log *slog.Logger) *PlaceSearcher {
	return &PlaceSearcher{
		geocoder: geocoder,
		log:      log,
		debounce: placeSearchDebounce,
		recent:   recent,
	}
}

// OnUpdate registers the callback invoked with every suggestion change.
func (s *PlaceSearcher) OnUpdate(fn func([]Place)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// SetQuery reacts to a keystroke. Queries shorter than the minimum clear the
// suggestion list immediately; anything longer is looked up after the debounce
// window, superseding any pending or in-flight lookup.
func (s *PlaceSearcher) SetQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++

	if len([]rune(query)) < placeSearchMinQueryLen {
		s.setSuggestionsLocked(nil)
		return
	}

	gen := s.generation
	s.timer = time.AfterFunc(s.debounce, func() {
		s.lookup(gen, query)
	})
}

func (s *PlaceSearcher) lookup(gen uint64, query string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	places, err := s.geocoder.Search(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// a newer query took over while we were waiting
		return
	}
	s.cancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("place search failed", "query", query, "err", err)
		s.setSuggestionsLocked(nil)
		return
	}

	if len(places) > placeSearchMaxResults {
		places = places[:placeSearchMaxResults]
	}
	s.setSuggestionsLocked(places)
}

func (s *PlaceSearcher) setSuggestionsLocked(places []Place) {
	if places == nil {
		places = []Place{}
	}
	s.suggestions = places
	if s.onUpdate != nil {
		s.onUpdate(places)
	}
}

// Suggestions returns the current suggestion list.
func (s *PlaceSearcher) Suggestions() []Place {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Place, len(s.suggestions))
	copy(out, s.suggestions)
	return out
}

// Select confirms a suggestion: the pick is recorded in the recent-search
// history and the suggestion list is cleared.
func (s *PlaceSearcher) Select(place Place) {
	if s.recent != nil {
		if err := s.recent.Add(place); err != nil {
			s.log.Error("failed to record recent search", "err", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setSuggestionsLocked(nil)
}
