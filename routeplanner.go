package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const osrmBaseURL = "https://router.project-osrm.org"

// RoutePlanner computes driving geometry through an ordered list of waypoints.
type RoutePlanner interface {
	Route(ctx context.Context, waypoints []LatLng) ([]LatLng, error)
}

// OSRMRoutePlanner queries the public OSRM demo router.
type OSRMRoutePlanner struct {
	BaseURL string
	Client  *http.Client
}

func (p *OSRMRoutePlanner) Route(ctx context.Context, waypoints []LatLng) ([]LatLng, error) {
	if len(waypoints) < 2 {
		return []LatLng{}, nil
	}

	base := p.BaseURL
	if base == "" {
		base = osrmBaseURL
	}

	// OSRM wants lng,lat pairs separated by semicolons
	coords := make([]string, len(waypoints))
	for i, wp := range waypoints {
		coords[i] = fmt.Sprintf("%f,%f", wp.Lng, wp.Lat)
	}
	u := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", base, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm error: %d", resp.StatusCode)
	}

	var data struct {
		Code   string `json:"code"`
		Routes []struct {
			Geometry struct {
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.Code != "Ok" || len(data.Routes) == 0 {
		return nil, fmt.Errorf("osrm returned no route (code %s)", data.Code)
	}

	// GeoJSON positions are [lng, lat]
	route := make([]LatLng, 0, len(data.Routes[0].Geometry.Coordinates))
	for _, pos := range data.Routes[0].Geometry.Coordinates {
		if len(pos) < 2 {
			continue
		}
		route = append(route, LatLng{Lat: pos[1], Lng: pos[0]})
	}
	return route, nil
}
