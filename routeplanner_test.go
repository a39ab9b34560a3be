package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOSRMRoutePlannerTooFewWaypoints(t *testing.T) {
	planner := &OSRMRoutePlanner{Client: http.DefaultClient}
	route, err := planner.Route(context.Background(), []LatLng{{Lat: 46.5, Lng: 8.4}})
	if err != nil {
		t.Fatal(err)
	}
	if len(route) != 0 {
		t.Fatalf("route = %+v, want empty", route)
	}
}

func TestOSRMRoutePlannerParsesGeometry(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"routes": [{"geometry": {"coordinates": [[8.4, 46.5], [8.45, 46.55], [8.5, 46.6]]}}]
		}`))
	}))
	defer server.Close()

	planner := &OSRMRoutePlanner{BaseURL: server.URL, Client: server.Client()}
	route, err := planner.Route(context.Background(), []LatLng{{Lat: 46.5, Lng: 8.4}, {Lat: 46.6, Lng: 8.5}})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(requestedPath, "/route/v1/driving/") {
		t.Fatalf("path = %q", requestedPath)
	}
	// waypoints go out as lng,lat and positions come back as [lng, lat]
	if !strings.Contains(requestedPath, "8.400000,46.500000;8.500000,46.600000") {
		t.Fatalf("path = %q", requestedPath)
	}
	if len(route) != 3 {
		t.Fatalf("route = %+v", route)
	}
	if route[0].Lat != 46.5 || route[0].Lng != 8.4 {
		t.Fatalf("route[0] = %+v", route[0])
	}
}

func TestOSRMRoutePlannerNoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer server.Close()

	planner := &OSRMRoutePlanner{BaseURL: server.URL, Client: server.Client()}
	if _, err := planner.Route(context.Background(), []LatLng{{Lat: 46.5, Lng: 8.4}, {Lat: 46.6, Lng: 8.5}}); err == nil {
		t.Fatal("expected an error for NoRoute")
	}
}
