package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFavoritesStoreToggleAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")

	store := NewFavoritesStore(path, discardLogger())
	if !store.Toggle("p1") {
		t.Fatal("first toggle must favorite")
	}
	store.Toggle("p2")
	if store.Toggle("p2") {
		t.Fatal("second toggle must unfavorite")
	}
	if !store.IsFavorite("p1") || store.IsFavorite("p2") {
		t.Fatalf("favorites = %v", store.All())
	}

	// reload from disk
	reloaded := NewFavoritesStore(path, discardLogger())
	if !reloaded.IsFavorite("p1") {
		t.Fatal("favorite lost on reload")
	}
	if len(reloaded.All()) != 1 {
		t.Fatalf("favorites = %v", reloaded.All())
	}
}

func TestFavoritesStoreCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFavoritesStore(path, discardLogger())
	if len(store.All()) != 0 {
		t.Fatalf("favorites = %v", store.All())
	}
}

func TestPreferencesStoreDefaults(t *testing.T) {
	dir := t.TempDir()
	store := NewPreferencesStore(filepath.Join(dir, "prefs.json"), discardLogger())
	prefs := store.Get()
	if prefs.Language != "de" || prefs.DarkMode {
		t.Fatalf("defaults = %+v", prefs)
	}

	store.Set(Preferences{Language: "fr", DarkMode: true})
	reloaded := NewPreferencesStore(filepath.Join(dir, "prefs.json"), discardLogger())
	prefs = reloaded.Get()
	if prefs.Language != "fr" || !prefs.DarkMode {
		t.Fatalf("reloaded = %+v", prefs)
	}
}

func TestRecentSearchesCapAndDedupe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	store := NewRecentSearches(path, discardLogger())

	for _, name := range []string{"Andermatt", "Brig", "Chur", "Davos", "Engelberg", "Flims"} {
		if err := store.Add(Place{DisplayName: name}); err != nil {
			t.Fatal(err)
		}
	}

	entries := store.All()
	if len(entries) != recentSearchesMaxEntries {
		t.Fatalf("got %d entries, want %d", len(entries), recentSearchesMaxEntries)
	}
	if entries[0].DisplayName != "Flims" {
		t.Fatalf("most recent first, got %q", entries[0].DisplayName)
	}
	for _, entry := range entries {
		if entry.DisplayName == "Andermatt" {
			t.Fatal("oldest entry must have been evicted")
		}
	}

	// re-adding moves to the front without duplicating
	if err := store.Add(Place{DisplayName: "Chur"}); err != nil {
		t.Fatal(err)
	}
	entries = store.All()
	if entries[0].DisplayName != "Chur" || len(entries) != recentSearchesMaxEntries {
		t.Fatalf("entries = %+v", entries)
	}
	seen := map[string]int{}
	for _, entry := range entries {
		seen[entry.DisplayName]++
	}
	if seen["Chur"] != 1 {
		t.Fatalf("duplicate entry: %+v", entries)
	}
}

func TestRecentSearchesRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	store := NewRecentSearches(path, discardLogger())
	_ = store.Add(Place{DisplayName: "Andermatt"})
	_ = store.Add(Place{DisplayName: "Brig"})

	if err := store.Remove("Andermatt"); err != nil {
		t.Fatal(err)
	}
	entries := store.All()
	if len(entries) != 1 || entries[0].DisplayName != "Brig" {
		t.Fatalf("entries = %+v", entries)
	}
}
