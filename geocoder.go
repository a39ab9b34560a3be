package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Place is a forward-geocoding hit: a named location with coordinates, used by
// the sidebar village search.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Geocoder abstraction for place lookup by free-text query
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// MapboxGeocoder implements Geocoder using Mapbox API v6
type MapboxGeocoder struct {
	AccessToken string
	Client      *http.Client
}

func (g *MapboxGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}

	u := fmt.Sprintf(
		"https://api.mapbox.com/search/geocode/v6/forward?q=%s&access_token=%s&types=place&limit=%d",
		url.QueryEscape(query), g.AccessToken, placeSearchMaxResults,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mapbox error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Features []struct {
			Properties struct {
				FullAddress string `json:"full_address"`
				Coordinates struct {
					Latitude  float64 `json:"latitude"`
					Longitude float64 `json:"longitude"`
				} `json:"coordinates"`
			} `json:"properties"`
		} `json:"features"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(data.Features))
	for _, feat := range data.Features {
		places = append(places, Place{
			DisplayName: feat.Properties.FullAddress,
			Lat:         feat.Properties.Coordinates.Latitude,
			Lng:         feat.Properties.Coordinates.Longitude,
		})
	}
	return places, nil
}

// NominatimGeocoder implements Geocoder using OSM Nominatim
// CAUTION: Requires User-Agent and has strict rate limits (1 req/sec)
type NominatimGeocoder struct {
	UserAgent    string
	CountryCodes string
	Client       *http.Client
	mu           sync.Mutex
	lastCall     time.Time
}

func (g *NominatimGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	g.mu.Lock()
	elapsed := time.Since(g.lastCall)
	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	u := fmt.Sprintf(
		"https://nominatim.openstreetmap.org/search?format=json&q=%s&limit=%d",
		url.QueryEscape(query), placeSearchMaxResults,
	)
	if g.CountryCodes != "" {
		u += "&countrycodes=" + url.QueryEscape(g.CountryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data []struct {
		DisplayName string `json:"display_name"`
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(data))
	for _, hit := range data {
		lat, latErr := strconv.ParseFloat(hit.Lat, 64)
		lng, lngErr := strconv.ParseFloat(hit.Lon, 64)
		if latErr != nil || lngErr != nil {
			continue
		}
		places = append(places, Place{DisplayName: hit.DisplayName, Lat: lat, Lng: lng})
	}
	return places, nil
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	places, err := g.Primary.Search(ctx, query)
	if err != nil || len(places) == 0 {
		return g.Secondary.Search(ctx, query)
	}
	return places, nil
}
