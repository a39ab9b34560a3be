package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (a *App) adminLoginHandler(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "email and password are required"})
		return
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" || body.Password == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "email and password are required"})
		return
	}

	if err := a.adminAuthenticate(c.Request.Context(), body.Email, body.Password); err != nil {
		writeAPIError(c, err)
		return
	}

	session := AdminSession{Email: body.Email}
	token, err := a.createAdminSessionToken(session)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	secure := !strings.EqualFold(a.cfg.Env, "development")
	c.SetCookie(adminCookieName, token, int(adminSessionDuration.Seconds()), "/", "", secure, true)
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (a *App) adminLogoutHandler(c *gin.Context) {
	secure := !strings.EqualFold(a.cfg.Env, "development")
	c.SetCookie(adminCookieName, "", -1, "/", "", secure, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *App) adminSessionHandler(c *gin.Context) {
	token, err := c.Cookie(adminCookieName)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "no active session"})
		return
	}
	session, err := a.verifyAdminSessionToken(token)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "no active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (a *App) adminListPassesHandler(c *gin.Context) {
	filters := map[string]any{}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filters["q"] = q
	}
	if passType := strings.TrimSpace(c.Query("type")); passType != "" {
		if !containsString(passTypes, passType) {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_type", Message: "unknown pass type"})
			return
		}
		filters["type"] = passType
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		statuses := []string{}
		for _, part := range strings.Split(raw, ",") {
			status := strings.TrimSpace(part)
			if status != "" {
				statuses = append(statuses, status)
			}
		}
		if len(statuses) > 0 {
			filters["statuses"] = statuses
		}
	}
	if country := strings.TrimSpace(c.Query("country")); country != "" {
		filters["country"] = country
	}

	passes, err := a.adminListPasses(c.Request.Context(), filters)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"passes": passes, "count": len(passes)})
}

// adminCreatePassHandler handles the simple create form. Only the tabular
// columns are accepted here; route geometry, circle overlays and descriptions
// are edited afterwards on the map editor, so whatever the client sends for
// them is dropped.
func (a *App) adminCreatePassHandler(c *gin.Context) {
	var pass Pass
	if err := c.ShouldBindJSON(&pass); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "invalid pass payload"})
		return
	}
	if strings.TrimSpace(pass.Name) == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_pass", Message: "name is required"})
		return
	}
	if pass.Type != "" && !containsString(passTypes, pass.Type) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_type", Message: "unknown pass type"})
		return
	}

	pass.Coords = nil
	pass.CircleCenterLat = nil
	pass.CircleCenterLng = nil
	pass.CircleRadius = nil
	pass.DescriptionDE = ""
	pass.DescriptionEN = ""
	pass.DescriptionFR = ""
	pass.DescriptionIT = ""

	if pass.ID == "" {
		pass.ID = uuid.NewString()
	}

	if err := a.adminInsertPass(c.Request.Context(), pass); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pass)
}

func (a *App) adminUpdatePassHandler(c *gin.Context) {
	var pass Pass
	if err := c.ShouldBindJSON(&pass); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "invalid pass payload"})
		return
	}
	pass.ID = c.Param("id")
	if strings.TrimSpace(pass.Name) == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_pass", Message: "name is required"})
		return
	}
	if pass.Type != "" && !containsString(passTypes, pass.Type) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_type", Message: "unknown pass type"})
		return
	}

	if err := a.adminUpdatePass(c.Request.Context(), pass); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, pass)
}

type batchSaveResult struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// adminBatchSaveHandler applies the staged table edits. Each record is updated
// independently: a failure is reported for that row and the loop moves on, so
// one bad cell never blocks the rest of the batch.
func (a *App) adminBatchSaveHandler(c *gin.Context) {
	var body struct {
		Updates []struct {
			ID     string         `json:"id"`
			Fields map[string]any `json:"fields"`
		} `json:"updates"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "invalid batch payload"})
		return
	}
	if len(body.Updates) == 0 {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "updates must not be empty"})
		return
	}

	saved := 0
	failed := []batchSaveResult{}
	for _, update := range body.Updates {
		if update.ID == "" {
			failed = append(failed, batchSaveResult{ID: "", Error: "missing id"})
			continue
		}
		if err := a.adminPatchPass(c.Request.Context(), update.ID, update.Fields); err != nil {
			a.log.Error("batch save entry failed", "id", update.ID, "err", err)
			failed = append(failed, batchSaveResult{ID: update.ID, Error: err.Error()})
			continue
		}
		saved++
	}

	c.JSON(http.StatusOK, gin.H{"saved": saved, "failed": failed})
}

// adminImportPassesHandler ingests a bulk JSON dump. The entries are one
// staged unit: the upsert loop stops at the first failure and the whole batch
// is reported failed, unlike the per-row table saves.
func (a *App) adminImportPassesHandler(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	entries, err := parseImportPayload(raw)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_import", Message: err.Error()})
		return
	}

	// validate the whole batch before touching the store so a bad entry
	// cannot leave a half-applied import behind
	passes := make([]Pass, 0, len(entries))
	for i, entry := range entries {
		pass := normalizeImportedPass(entry)
		if strings.TrimSpace(pass.Name) == "" {
			writeAPIError(c, &apiError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_import",
				Message: fmt.Sprintf("import entry %d is missing a name", i),
			})
			return
		}
		passes = append(passes, pass)
	}

	imported := 0
	for i, pass := range passes {
		if err := a.adminUpsertPass(c.Request.Context(), pass); err != nil {
			a.log.Error("import aborted", "index", i, "id", pass.ID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":    "import_failed",
				"message":  "import aborted on first failing entry",
				"index":    i,
				"imported": imported,
			})
			return
		}
		imported++
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

// adminDeletePassHandler removes the record and echoes it back so the client
// can offer an undo; restore simply reinserts that payload.
func (a *App) adminDeletePassHandler(c *gin.Context) {
	id := c.Param("id")
	pass, err := a.adminGetPass(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if err := a.adminDeletePass(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": pass})
}

func (a *App) adminRestorePassHandler(c *gin.Context) {
	var pass Pass
	if err := c.ShouldBindJSON(&pass); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "invalid pass payload"})
		return
	}
	pass.ID = c.Param("id")
	if strings.TrimSpace(pass.Name) == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_pass", Message: "name is required"})
		return
	}

	if err := a.adminInsertPass(c.Request.Context(), pass); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pass)
}

// adminRouteHandler proxies the routing engine for the map editor. Routing
// failures are logged and answered with an empty route so the editor keeps
// the manually placed waypoints.
func (a *App) adminRouteHandler(c *gin.Context) {
	var body struct {
		Waypoints []LatLng `json:"waypoints"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "waypoints must be [lat, lng] pairs"})
		return
	}
	if len(body.Waypoints) < 2 {
		c.JSON(http.StatusOK, gin.H{"route": []LatLng{}})
		return
	}

	route, err := a.routes.Route(c.Request.Context(), body.Waypoints)
	if err != nil {
		a.log.Error("route lookup failed", "waypoints", len(body.Waypoints), "err", err)
		c.JSON(http.StatusOK, gin.H{"route": []LatLng{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": route})
}
