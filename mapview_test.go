package main

import "testing"

type fakeViewport struct {
	center   LatLng
	zoom     int
	setCalls int
}

func (v *fakeViewport) SetView(center LatLng, zoom int) {
	v.center = center
	v.zoom = zoom
	v.setCalls++
}

func (v *fakeViewport) View() (LatLng, int) {
	return v.center, v.zoom
}

func TestSelectPassAutoZoom(t *testing.T) {
	viewport := &fakeViewport{}
	controller := NewMapController(viewport)
	controller.SetCenterOffset(LatLng{Lat: -0.01})

	pass := Pass{ID: "p1", Name: "Furkapass", MarkerLat: floatPtr(46.57), MarkerLng: floatPtr(8.41)}
	controller.SelectPass(pass)

	if viewport.setCalls != 1 {
		t.Fatalf("setCalls = %d", viewport.setCalls)
	}
	if viewport.zoom != autoZoomLevel {
		t.Fatalf("zoom = %d, want %d", viewport.zoom, autoZoomLevel)
	}
	if viewport.center.Lat != 46.56 || viewport.center.Lng != 8.41 {
		t.Fatalf("center = %+v", viewport.center)
	}
	if selected := controller.Selected(); selected == nil || selected.ID != "p1" {
		t.Fatalf("selected = %+v", selected)
	}
}

func TestSelectPassAutoZoomDisabled(t *testing.T) {
	viewport := &fakeViewport{}
	controller := NewMapController(viewport)
	controller.SetAutoZoom(false)

	controller.SelectPass(Pass{ID: "p1", MarkerLat: floatPtr(46.57), MarkerLng: floatPtr(8.41)})
	if viewport.setCalls != 0 {
		t.Fatalf("setCalls = %d, want 0", viewport.setCalls)
	}
	if controller.Selected() == nil {
		t.Fatal("selection must still happen")
	}
}

func TestSelectPassWithoutMarkerKeepsView(t *testing.T) {
	viewport := &fakeViewport{}
	controller := NewMapController(viewport)

	controller.SelectPass(Pass{ID: "p1", Name: "Seenroute"})
	if viewport.setCalls != 0 {
		t.Fatalf("setCalls = %d, want 0", viewport.setCalls)
	}
}

func TestFeatureClickSuppressesBackgroundClear(t *testing.T) {
	controller := NewMapController(&fakeViewport{})
	pass := Pass{ID: "p1", MarkerLat: floatPtr(46.57), MarkerLng: floatPtr(8.41)}

	token := controller.FeatureClicked(pass)
	if cleared := controller.BackgroundClicked(token); cleared {
		t.Fatal("background click in the same interaction must not clear the selection")
	}
	if controller.Selected() == nil {
		t.Fatal("selection was cleared")
	}

	// a later background click without a feature hit clears it
	if cleared := controller.BackgroundClicked(0); !cleared {
		t.Fatal("plain background click must clear the selection")
	}
	if controller.Selected() != nil {
		t.Fatal("selection survived a plain background click")
	}
}

func TestStaleTokenDoesNotSuppressClear(t *testing.T) {
	controller := NewMapController(&fakeViewport{})
	pass := Pass{ID: "p1"}

	stale := controller.FeatureClicked(pass)
	controller.BackgroundClicked(stale) // consumes the token

	controller.SelectPass(pass)
	if cleared := controller.BackgroundClicked(stale); !cleared {
		t.Fatal("a consumed token must not suppress later clears")
	}
}

func TestPassGeometries(t *testing.T) {
	pass := Pass{
		MarkerLat:       floatPtr(46.57),
		MarkerLng:       floatPtr(8.41),
		Coords:          []LatLng{{Lat: 46.5, Lng: 8.4}, {Lat: 46.6, Lng: 8.5}},
		CircleCenterLat: floatPtr(46.55),
		CircleCenterLng: floatPtr(8.45),
		CircleRadius:    floatPtr(250),
	}
	geoms := passGeometries(pass)
	if len(geoms) != 3 {
		t.Fatalf("got %d geometries, want 3", len(geoms))
	}

	var marker, line, circle bool
	for _, geom := range geoms {
		switch g := geom.(type) {
		case MarkerGeometry:
			marker = true
		case LineGeometry:
			line = len(g.Points) == 2
		case CircleGeometry:
			circle = g.Radius == 250
		}
	}
	if !marker || !line || !circle {
		t.Fatalf("marker=%v line=%v circle=%v", marker, line, circle)
	}

	// a single coordinate is not a renderable line
	pass.Coords = pass.Coords[:1]
	for _, geom := range passGeometries(pass) {
		if _, ok := geom.(LineGeometry); ok {
			t.Fatal("single-point polyline must be omitted")
		}
	}
}
