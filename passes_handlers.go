package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// criteriaFromQuery maps the public query parameters onto the filter pipeline.
// Absent legend parameter means all toggles on; an explicit empty one turns
// everything off.
func criteriaFromQuery(c *gin.Context) FilterCriteria {
	criteria := FilterCriteria{
		Query:  c.Query("q"),
		Legend: defaultLegendToggles(),
		Level:  strings.TrimSpace(c.Query("level")),
	}

	if raw, present := c.GetQuery("legend"); present {
		criteria.Legend = make(map[string]bool, len(legendCategories))
		for _, part := range strings.Split(raw, ",") {
			key := strings.TrimSpace(strings.ToLower(part))
			if containsString(legendCategories, key) {
				criteria.Legend[key] = true
			}
		}
	}

	if raw := strings.TrimSpace(c.Query("countries")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			code := strings.ToUpper(strings.TrimSpace(part))
			if code != "" {
				criteria.Countries = append(criteria.Countries, code)
			}
		}
	}

	if raw := strings.TrimSpace(c.Query("favorites")); raw != "" {
		criteria.Favorites = make(map[string]struct{})
		for _, part := range strings.Split(raw, ",") {
			id := strings.TrimSpace(part)
			if id != "" {
				criteria.Favorites[id] = struct{}{}
			}
		}
	}
	criteria.FavoritesOnly = c.Query("favorites_only") == "true"

	return criteria
}

func (a *App) publicPassesHandler(c *gin.Context) {
	passes, err := a.publicListPasses(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	derived := derivePassStatuses(passes, time.Now())
	criteria := criteriaFromQuery(c)
	filtered := filterPasses(derived, criteria)

	if c.Query("view") == "map" {
		filtered = mapEligiblePasses(filtered, criteria)
	}

	c.JSON(http.StatusOK, gin.H{"passes": filtered, "count": len(filtered)})
}

func (a *App) publicPassDetailHandler(c *gin.Context) {
	pass, err := a.adminGetPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if pass.Hidden {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "pass not found"})
		return
	}

	derived := derivePassStatuses([]Pass{*pass}, time.Now())
	c.JSON(http.StatusOK, derived[0])
}

func (a *App) countriesHandler(c *gin.Context) {
	passes, err := a.publicListPasses(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": uniqueCountryCodes(passes)})
}

func (a *App) levelsHandler(c *gin.Context) {
	passes, err := a.publicListPasses(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"levels": uniqueLevels(passes)})
}

func (a *App) geocodeHandler(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if len([]rune(query)) < placeSearchMinQueryLen {
		c.JSON(http.StatusOK, gin.H{"places": []Place{}})
		return
	}

	places, err := a.geocoder.Search(c.Request.Context(), query)
	if err != nil {
		a.log.Error("geocode lookup failed", "query", query, "err", err)
		c.JSON(http.StatusOK, gin.H{"places": []Place{}})
		return
	}
	if len(places) > placeSearchMaxResults {
		places = places[:placeSearchMaxResults]
	}
	c.JSON(http.StatusOK, gin.H{"places": places})
}
