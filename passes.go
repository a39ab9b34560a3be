package main

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const dayFirstDateLayout = "2.1.2006"

const (
	statusOpen   = "open"
	statusClosed = "closed"
)

const (
	categoryOpen   = "open"
	categoryClosed = "closed"
	categoryRoute  = "route"
	categoryTour   = "tour"
	categoryPOI    = "poi"
)

var legendCategories = []string{categoryOpen, categoryClosed, categoryRoute, categoryTour, categoryPOI}

// LatLng is serialized as a two-element [lat, lng] array, the shape the route
// polylines are stored in.
type LatLng struct {
	Lat float64
	Lng float64
}

func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

func (p *LatLng) UnmarshalJSON(data []byte) error {
	var raw [2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid coordinate pair: %w", err)
	}
	p.Lat = raw[0]
	p.Lng = raw[1]
	return nil
}

// Pass mirrors a row of the passes table. Status is nil for "always open"
// records; Countries is a comma-separated list of two-letter codes, kept as
// free text because the stored data is not normalized.
type Pass struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Status          *string  `json:"status"`
	OpensAt         *string  `json:"opens_at"`
	ClosesAt        *string  `json:"closes_at"`
	Countries       string   `json:"countries"`
	Canton          *string  `json:"canton,omitempty"`
	Region          *string  `json:"region,omitempty"`
	Level           string   `json:"level"`
	LengthKM        *float64 `json:"length,omitempty"`
	HeightM         *float64 `json:"height,omitempty"`
	Coords          []LatLng `json:"coords,omitempty"`
	MarkerLat       *float64 `json:"marker_lat,omitempty"`
	MarkerLng       *float64 `json:"marker_lng,omitempty"`
	CircleCenterLat *float64 `json:"circle_center_lat,omitempty"`
	CircleCenterLng *float64 `json:"circle_center_lng,omitempty"`
	CircleRadius    *float64 `json:"circle_radius,omitempty"`
	Hidden          bool     `json:"hidden"`
	DescriptionDE   string   `json:"description_de"`
	DescriptionEN   string   `json:"description_en"`
	DescriptionFR   string   `json:"description_fr"`
	DescriptionIT   string   `json:"description_it"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// HasRoute reports whether the pass carries a renderable polyline. Sequences
// with fewer than two points cannot be drawn as a line.
func (p Pass) HasRoute() bool {
	return len(p.Coords) > 1
}

func (p Pass) statusValue() string {
	if p.Status == nil {
		return ""
	}
	return *p.Status
}

func parseDayFirstDate(value string) (time.Time, bool) {
	parsed, err := time.Parse(dayFirstDateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// derivePassStatuses recomputes open/closed statuses from the seasonal dates.
// Absent or malformed dates impose no constraint and leave the stored status
// untouched. The close check runs after the open check so it wins when both
// thresholds have passed. The input slice is not mutated.
func derivePassStatuses(passes []Pass, today time.Time) []Pass {
	out := make([]Pass, len(passes))
	for i, pass := range passes {
		status := pass.Status
		if pass.OpensAt != nil {
			if opensAt, ok := parseDayFirstDate(*pass.OpensAt); ok && !today.Before(opensAt) {
				open := statusOpen
				status = &open
			}
		}
		if pass.ClosesAt != nil {
			if closesAt, ok := parseDayFirstDate(*pass.ClosesAt); ok && !today.Before(closesAt) {
				closed := statusClosed
				status = &closed
			}
		}
		pass.Status = status
		out[i] = pass
	}
	return out
}

// legendCategory maps a pass onto the legend bucket used by the public map.
// Unrecognized types map to no category at all and are dropped whenever any
// legend toggle is active.
func legendCategory(pass Pass) string {
	switch pass.Type {
	case "road":
		return categoryRoute
	case "tour":
		return categoryTour
	case "scenic":
		return categoryPOI
	case "pass":
		if pass.statusValue() == statusClosed {
			return categoryClosed
		}
		return categoryOpen
	default:
		return ""
	}
}

// FilterCriteria captures the sidebar filter state. Legend keys are the five
// category toggles; an empty Countries slice or Level means "any".
type FilterCriteria struct {
	Query         string
	Legend        map[string]bool
	FavoritesOnly bool
	Favorites     map[string]struct{}
	Countries     []string
	Level         string
}

func defaultLegendToggles() map[string]bool {
	toggles := make(map[string]bool, len(legendCategories))
	for _, key := range legendCategories {
		toggles[key] = true
	}
	return toggles
}

func anyLegendToggleActive(legend map[string]bool) bool {
	for _, key := range legendCategories {
		if legend[key] {
			return true
		}
	}
	return false
}

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

func splitCountryCodes(raw string) []string {
	if raw == "" {
		return nil
	}
	var codes []string
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func levelOrDefault(pass Pass) string {
	if pass.Level == "" {
		return levelLow
	}
	return pass.Level
}

// filterPasses applies the sidebar criteria conjunctively and returns the
// matches sorted by name. All legend toggles off means an empty result, not
// an unfiltered one.
func filterPasses(passes []Pass, criteria FilterCriteria) []Pass {
	filtered := []Pass{}
	if !anyLegendToggleActive(criteria.Legend) {
		return filtered
	}

	query := strings.ToLower(strings.TrimSpace(criteria.Query))
	for _, pass := range passes {
		if query != "" && !strings.Contains(strings.ToLower(pass.Name), query) {
			continue
		}

		category := legendCategory(pass)
		if category == "" || !criteria.Legend[category] {
			continue
		}

		if criteria.FavoritesOnly {
			if _, ok := criteria.Favorites[pass.ID]; !ok {
				continue
			}
		}

		if len(criteria.Countries) > 0 && !matchesAnyCountry(pass.Countries, criteria.Countries) {
			continue
		}

		if criteria.Level != "" && levelOrDefault(pass) != criteria.Level {
			continue
		}

		filtered = append(filtered, pass)
	}

	sortPassesByName(filtered)
	return filtered
}

func matchesAnyCountry(raw string, selection []string) bool {
	codes := splitCountryCodes(raw)
	for _, code := range codes {
		for _, selected := range selection {
			if strings.EqualFold(code, selected) {
				return true
			}
		}
	}
	return false
}

// mapEligiblePasses restricts an already filtered set to the non-pass line
// categories rendered on the map.
func mapEligiblePasses(filtered []Pass, criteria FilterCriteria) []Pass {
	eligible := []Pass{}
	for _, pass := range filtered {
		switch category := legendCategory(pass); category {
		case categoryRoute, categoryTour, categoryPOI:
			if criteria.Legend[category] {
				eligible = append(eligible, pass)
			}
		}
	}
	return eligible
}

var nameCollator = collate.New(language.German)

func sortPassesByName(passes []Pass) {
	sort.SliceStable(passes, func(i, j int) bool {
		return nameCollator.CompareString(passes[i].Name, passes[j].Name) < 0
	})
}

// uniqueCountryCodes collects the distinct two-letter codes present in the
// data for the country dropdown. Malformed entries are skipped.
func uniqueCountryCodes(passes []Pass) []string {
	seen := make(map[string]struct{})
	for _, pass := range passes {
		for _, code := range splitCountryCodes(pass.Countries) {
			if countryCodePattern.MatchString(code) {
				seen[code] = struct{}{}
			}
		}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func uniqueLevels(passes []Pass) []string {
	seen := make(map[string]struct{})
	for _, pass := range passes {
		if pass.Level != "" {
			seen[pass.Level] = struct{}{}
		}
	}
	levels := make([]string, 0, len(seen))
	for level := range seen {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	return levels
}
