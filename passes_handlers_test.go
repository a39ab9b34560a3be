package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func stubPublicPasses(app *App, passes []Pass) {
	app.publicListPasses = func(ctx context.Context) ([]Pass, error) {
		return passes, nil
	}
}

func TestPublicPassesDefaultLegend(t *testing.T) {
	app, router := newTestApp(t)
	stubPublicPasses(app, testPasses())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/passes", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var out struct {
		Passes []Pass `json:"passes"`
		Count  int    `json:"count"`
	}
	decodeBody(t, res, &out)
	// everything but the uncategorized transit entry
	if out.Count != 6 {
		t.Fatalf("count = %d, want 6", out.Count)
	}
}

func TestPublicPassesExplicitEmptyLegendIsEmpty(t *testing.T) {
	app, router := newTestApp(t)
	stubPublicPasses(app, testPasses())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/passes?legend=", nil))

	var out struct {
		Passes []Pass `json:"passes"`
	}
	decodeBody(t, res, &out)
	if len(out.Passes) != 0 {
		t.Fatalf("got %d passes, want 0 with all toggles off", len(out.Passes))
	}
}

func TestPublicPassesMapView(t *testing.T) {
	app, router := newTestApp(t)
	stubPublicPasses(app, testPasses())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/passes?view=map", nil))

	var out struct {
		Passes []Pass `json:"passes"`
	}
	decodeBody(t, res, &out)
	for _, pass := range out.Passes {
		if pass.Type == "pass" || pass.Type == "transit" {
			t.Fatalf("map view leaked type %q", pass.Type)
		}
	}
	if len(out.Passes) != 3 {
		t.Fatalf("got %d map passes, want 3", len(out.Passes))
	}
}

func TestPublicPassesDerivesStatuses(t *testing.T) {
	app, router := newTestApp(t)
	stubPublicPasses(app, []Pass{
		{ID: "a", Name: "Furkapass", Type: "pass", Status: strPtr(statusClosed), OpensAt: strPtr("1.1.2000")},
	})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/passes?legend=open", nil))

	var out struct {
		Passes []Pass `json:"passes"`
	}
	decodeBody(t, res, &out)
	// opened long ago, so it must show up under the open toggle
	if len(out.Passes) != 1 || out.Passes[0].statusValue() != statusOpen {
		t.Fatalf("passes = %+v", out.Passes)
	}
}

func TestPublicPassDetailHidesHiddenRecords(t *testing.T) {
	app, router := newTestApp(t)
	app.adminGetPass = func(ctx context.Context, id string) (*Pass, error) {
		return &Pass{ID: id, Name: "Geheim", Type: "pass", Hidden: true}, nil
	}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/passes/p1", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for hidden pass", res.Code)
	}
}

func TestCountriesAndLevelsEndpoints(t *testing.T) {
	app, router := newTestApp(t)
	stubPublicPasses(app, testPasses())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/countries", nil))
	var countries struct {
		Countries []string `json:"countries"`
	}
	decodeBody(t, res, &countries)
	if len(countries.Countries) != 2 || countries.Countries[0] != "CH" || countries.Countries[1] != "IT" {
		t.Fatalf("countries = %v", countries.Countries)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/levels", nil))
	var levels struct {
		Levels []string `json:"levels"`
	}
	decodeBody(t, res, &levels)
	if len(levels.Levels) != 3 {
		t.Fatalf("levels = %v", levels.Levels)
	}
}

type stubGeocoder struct {
	places []Place
	err    error
	calls  int
}

func (s *stubGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	s.calls++
	return s.places, s.err
}

func TestGeocodeHandlerShortQueryClears(t *testing.T) {
	app, router := newTestApp(t)
	geocoder := &stubGeocoder{places: []Place{{DisplayName: "Andermatt"}}}
	app.geocoder = geocoder

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/geocode?q=an", nil))

	var out struct {
		Places []Place `json:"places"`
	}
	decodeBody(t, res, &out)
	if len(out.Places) != 0 || geocoder.calls != 0 {
		t.Fatalf("short query must not hit the geocoder: %+v, calls=%d", out.Places, geocoder.calls)
	}
}

func TestGeocodeHandlerCapsResults(t *testing.T) {
	app, router := newTestApp(t)
	places := make([]Place, 8)
	for i := range places {
		places[i] = Place{DisplayName: "Ort", Lat: float64(i)}
	}
	app.geocoder = &stubGeocoder{places: places}

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/geocode?q=andermatt", nil))

	var out struct {
		Places []Place `json:"places"`
	}
	decodeBody(t, res, &out)
	if len(out.Places) != placeSearchMaxResults {
		t.Fatalf("got %d places, want %d", len(out.Places), placeSearchMaxResults)
	}
}
