package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// The client keeps favorites, preferences and the recent-search history in
// local storage. These stores mirror that behavior for the Go clients: one
// JSON file per concern, rewritten on every mutation, and a corrupt or
// missing file silently loads as the defaults.

func readStateFile(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(content, out)
}

func writeStateFile(path string, value any) error {
	content, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// FavoritesStore persists the set of favorited pass ids.
type FavoritesStore struct {
	path string
	log  *slog.Logger

	mu  sync.Mutex
	ids map[string]struct{}
}

func NewFavoritesStore(path string, log *slog.Logger) *FavoritesStore {
	store := &FavoritesStore{path: path, log: log, ids: make(map[string]struct{})}
	var stored []string
	if err := readStateFile(path, &stored); err != nil {
		log.Warn("favorites state unreadable, starting empty", "path", path, "err", err)
	}
	for _, id := range stored {
		store.ids[id] = struct{}{}
	}
	return store
}

// Toggle flips the favorite state of a pass and reports the new state.
func (s *FavoritesStore) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, favorited := s.ids[id]
	if favorited {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	s.persistLocked()
	return !favorited
}

func (s *FavoritesStore) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// All returns the favorited ids as a set for the filter pipeline.
func (s *FavoritesStore) All() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *FavoritesStore) persistLocked() {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	if err := writeStateFile(s.path, ids); err != nil {
		s.log.Error("failed to persist favorites", "err", err)
	}
}

// Preferences holds the persisted UI settings.
type Preferences struct {
	Language string `json:"language"`
	DarkMode bool   `json:"dark_mode"`
}

type PreferencesStore struct {
	path string
	log  *slog.Logger

	mu    sync.Mutex
	prefs Preferences
}

func NewPreferencesStore(path string, log *slog.Logger) *PreferencesStore {
	store := &PreferencesStore{path: path, log: log, prefs: Preferences{Language: "de"}}
	prefs := store.prefs
	if err := readStateFile(path, &prefs); err != nil {
		log.Warn("preferences state unreadable, using defaults", "path", path, "err", err)
	} else {
		if prefs.Language == "" {
			prefs.Language = "de"
		}
		store.prefs = prefs
	}
	return store
}

func (s *PreferencesStore) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (s *PreferencesStore) Set(prefs Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prefs.Language == "" {
		prefs.Language = "de"
	}
	s.prefs = prefs
	if err := writeStateFile(s.path, s.prefs); err != nil {
		s.log.Error("failed to persist preferences", "err", err)
	}
}

// RecentSearches keeps the last confirmed place lookups, most recent first,
// de-duplicated by display name and capped.
type RecentSearches struct {
	path string

	mu      sync.Mutex
	entries []Place
}

func NewRecentSearches(path string, log *slog.Logger) *RecentSearches {
	store := &RecentSearches{path: path}
	if err := readStateFile(path, &store.entries); err != nil {
		log.Warn("recent searches unreadable, starting empty", "path", path, "err", err)
		store.entries = nil
	}
	if len(store.entries) > recentSearchesMaxEntries {
		store.entries = store.entries[:recentSearchesMaxEntries]
	}
	return store
}

func (s *RecentSearches) Add(place Place) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []Place{place}
	for _, entry := range s.entries {
		if entry.DisplayName == place.DisplayName {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) > recentSearchesMaxEntries {
		entries = entries[:recentSearchesMaxEntries]
	}
	s.entries = entries
	return writeStateFile(s.path, s.entries)
}

func (s *RecentSearches) Remove(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries[:0:0]
	for _, entry := range s.entries {
		if entry.DisplayName == displayName {
			continue
		}
		entries = append(entries, entry)
	}
	s.entries = entries
	return writeStateFile(s.path, s.entries)
}

func (s *RecentSearches) All() []Place {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Place, len(s.entries))
	copy(out, s.entries)
	return out
}
