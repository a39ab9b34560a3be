package main

import "sync"

// Viewport is the handle the controller uses to move the map. The concrete
// renderer lives on the client; tests plug in a recording fake.
type Viewport interface {
	SetView(center LatLng, zoom int)
	View() (LatLng, int)
}

// Geometry is what a pass contributes to the map: a marker, a polyline, or a
// circle overlay. Callers switch on the concrete type.
type Geometry interface {
	isGeometry()
}

type MarkerGeometry struct {
	Position LatLng
}

type LineGeometry struct {
	Points []LatLng
}

type CircleGeometry struct {
	Center LatLng
	Radius float64
}

func (MarkerGeometry) isGeometry() {}
func (LineGeometry) isGeometry()   {}
func (CircleGeometry) isGeometry() {}

// passGeometries collects the renderable geometry of a pass. Polylines with
// fewer than two points are omitted.
func passGeometries(pass Pass) []Geometry {
	geoms := []Geometry{}
	if pass.MarkerLat != nil && pass.MarkerLng != nil {
		geoms = append(geoms, MarkerGeometry{Position: LatLng{Lat: *pass.MarkerLat, Lng: *pass.MarkerLng}})
	}
	if pass.HasRoute() {
		geoms = append(geoms, LineGeometry{Points: pass.Coords})
	}
	if pass.CircleCenterLat != nil && pass.CircleCenterLng != nil && pass.CircleRadius != nil {
		geoms = append(geoms, CircleGeometry{
			Center: LatLng{Lat: *pass.CircleCenterLat, Lng: *pass.CircleCenterLng},
			Radius: *pass.CircleRadius,
		})
	}
	return geoms
}

// MapController owns map selection state. Clicking a feature yields an
// interaction token; the background-click handler consumes it, so a click
// that landed on a feature never also clears the selection.
type MapController struct {
	mu sync.Mutex

	viewport     Viewport
	autoZoom     bool
	centerOffset LatLng

	selected       *Pass
	lastFeatureHit uint64
	tokenCounter   uint64
}

func NewMapController(viewport Viewport) *MapController {
	return &MapController{viewport: viewport, autoZoom: true}
}

// SetAutoZoom toggles whether selecting a pass recenters the map.
func (m *MapController) SetAutoZoom(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoZoom = enabled
}

// SetCenterOffset shifts the auto-zoom target, e.g. to keep the marker clear
// of the sidebar.
func (m *MapController) SetCenterOffset(offset LatLng) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.centerOffset = offset
}

// SelectPass marks the pass as selected and, with auto-zoom on and a marker
// present, recenters the viewport on it.
func (m *MapController) SelectPass(pass Pass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	selected := pass
	m.selected = &selected

	if m.autoZoom && pass.MarkerLat != nil && pass.MarkerLng != nil {
		center := LatLng{
			Lat: *pass.MarkerLat + m.centerOffset.Lat,
			Lng: *pass.MarkerLng + m.centerOffset.Lng,
		}
		m.viewport.SetView(center, autoZoomLevel)
	}
}

// Selected returns the currently selected pass, or nil.
func (m *MapController) Selected() *Pass {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return nil
	}
	selected := *m.selected
	return &selected
}

// FeatureClicked records a click on a feature and returns its interaction
// token. The token marks the click so the background handler fired by the
// same interaction leaves the selection alone.
func (m *MapController) FeatureClicked(pass Pass) uint64 {
	m.mu.Lock()
	m.tokenCounter++
	token := m.tokenCounter
	m.lastFeatureHit = token
	m.mu.Unlock()

	m.SelectPass(pass)
	return token
}

// BackgroundClicked handles a click that reached the map background. When the
// interaction also hit a feature (token matches the last feature hit) the
// selection survives; otherwise it is cleared. Reports whether the selection
// was cleared.
func (m *MapController) BackgroundClicked(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != 0 && token == m.lastFeatureHit {
		m.lastFeatureHit = 0
		return false
	}
	m.selected = nil
	return true
}
