package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	levelHigh = "hoch"
	levelMid  = "mittel"
	levelLow  = "niedrig"
)

const (
	levelHighThresholdM = 2000
	levelMidThresholdM  = 1000
)

var typeKeywords = []struct {
	keywords []string
	passType string
}{
	{[]string{"pass"}, "pass"},
	{[]string{"transit"}, "transit"},
	{[]string{"aussicht"}, "scenic"},
	{[]string{"zweig", "branch"}, "branch"},
	{[]string{"str", "straße", "strasse"}, "road"},
}

var countryKeywords = []struct {
	keywords []string
	code     string
}{
	{[]string{"grimsel", "furka", "glarus", "bern"}, "ch"},
	{[]string{"italien", "italy", "it"}, "it"},
	{[]string{"frankreich", "france", "fr"}, "fr"},
	{[]string{"deutschland", "germany", "de"}, "de"},
	{[]string{"liechtenstein", "fl"}, "fl"},
	{[]string{"österreich", "austria", "at"}, "at"},
}

// importedPass is the loose shape accepted by the bulk import: a pass with an
// optional language-keyed description object and an optional [lat, lng] marker
// pair instead of the flattened columns.
type importedPass struct {
	Pass
	Description map[string]string `json:"description,omitempty"`
	Marker      []float64         `json:"marker,omitempty"`
}

// parseImportPayload accepts either a single object or an array of objects.
func parseImportPayload(raw []byte) ([]importedPass, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var entries []importedPass
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("invalid import JSON: %w", err)
		}
		return entries, nil
	}
	var entry importedPass
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("invalid import JSON: %w", err)
	}
	return []importedPass{entry}, nil
}

// normalizeImportedPass flattens a heterogeneous import entry into the record
// shape: description object into per-language columns, marker pair into
// lat/lng, and type/level/countries inferred when absent. A missing identifier
// is generated here so the entry is addressable in the staging list.
func normalizeImportedPass(entry importedPass) Pass {
	pass := entry.Pass

	if entry.Description != nil {
		if pass.DescriptionDE == "" {
			pass.DescriptionDE = entry.Description["DE"]
		}
		if pass.DescriptionEN == "" {
			pass.DescriptionEN = entry.Description["EN"]
		}
		if pass.DescriptionIT == "" {
			pass.DescriptionIT = entry.Description["IT"]
		}
		if pass.DescriptionFR == "" {
			pass.DescriptionFR = entry.Description["FR"]
		}
	}

	if pass.MarkerLat == nil && len(entry.Marker) >= 2 {
		lat, lng := entry.Marker[0], entry.Marker[1]
		pass.MarkerLat = &lat
		pass.MarkerLng = &lng
	}

	if pass.Type == "" {
		pass.Type = inferTypeFromName(pass.Name)
	}
	if pass.Level == "" {
		pass.Level = inferLevelFromHeight(pass.HeightM)
	}
	if pass.Countries == "" {
		pass.Countries = inferCountriesFromName(pass.Name)
	}

	if pass.ID == "" {
		pass.ID = uuid.NewString()
	}

	return pass
}

func inferTypeFromName(name string) string {
	lowered := strings.ToLower(name)
	for _, rule := range typeKeywords {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.passType
			}
		}
	}
	return ""
}

func inferLevelFromHeight(height *float64) string {
	if height != nil && *height > levelHighThresholdM {
		return levelHigh
	}
	if height != nil && *height > levelMidThresholdM {
		return levelMid
	}
	return levelLow
}

func inferCountriesFromName(name string) string {
	lowered := strings.ToLower(name)
	var matched []string
	for _, rule := range countryKeywords {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, rule.code)
				break
			}
		}
	}
	return strings.Join(matched, ",")
}
