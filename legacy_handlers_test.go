package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newLegacyTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	app, router := newTestApp(t)
	app.legacy = NewLegacyPassFile(filepath.Join(app.cfg.DataRoot, "data", "passes.json"))
	return app, router
}

func legacyGet(t *testing.T, router http.Handler) []map[string]any {
	t.Helper()
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/passes", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	var entries []map[string]any
	decodeBody(t, res, &entries)
	return entries
}

func legacyPost(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/passes", strings.NewReader(body))
	req.Header.Set("content-type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLegacyListMissingFileIsEmpty(t *testing.T) {
	_, router := newLegacyTestApp(t)
	if entries := legacyGet(t, router); len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}

func TestLegacyAppendAndDelete(t *testing.T) {
	_, router := newLegacyTestApp(t)

	res := legacyPost(t, router, `{"newPass": {"name": "Furkapass", "coords": [[46.5, 8.4]]}}`)
	if res.Code != http.StatusOK {
		t.Fatalf("append status = %d, body = %s", res.Code, res.Body.String())
	}
	res = legacyPost(t, router, `{"newPass": {"name": "Grimselpass", "coords": []}}`)
	if res.Code != http.StatusOK {
		t.Fatalf("append status = %d", res.Code)
	}

	entries := legacyGet(t, router)
	if len(entries) != 2 || entries[0]["name"] != "Furkapass" {
		t.Fatalf("entries = %v", entries)
	}

	res = legacyPost(t, router, `{"deleteIndex": 0}`)
	if res.Code != http.StatusOK {
		t.Fatalf("delete status = %d", res.Code)
	}
	entries = legacyGet(t, router)
	if len(entries) != 1 || entries[0]["name"] != "Grimselpass" {
		t.Fatalf("entries after delete = %v", entries)
	}

	res = legacyPost(t, router, `{"deleteIndex": 5}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range delete status = %d", res.Code)
	}
}

func TestLegacyAppendValidation(t *testing.T) {
	_, router := newLegacyTestApp(t)

	if res := legacyPost(t, router, `{"newPass": {"coords": []}}`); res.Code != http.StatusBadRequest {
		t.Fatalf("missing name status = %d", res.Code)
	}
	if res := legacyPost(t, router, `{"newPass": {"name": "X", "coords": "not an array"}}`); res.Code != http.StatusBadRequest {
		t.Fatalf("bad coords status = %d", res.Code)
	}
}

func TestLegacyFullReplace(t *testing.T) {
	_, router := newLegacyTestApp(t)
	legacyPost(t, router, `{"newPass": {"name": "Alt", "coords": []}}`)

	res := legacyPost(t, router, `[{"name": "Neu", "coords": []}]`)
	if res.Code != http.StatusOK {
		t.Fatalf("replace status = %d", res.Code)
	}
	entries := legacyGet(t, router)
	if len(entries) != 1 || entries[0]["name"] != "Neu" {
		t.Fatalf("entries after replace = %v", entries)
	}
}

func TestLegacyNullBodyDoesNotWipeFile(t *testing.T) {
	_, router := newLegacyTestApp(t)
	legacyPost(t, router, `{"newPass": {"name": "Furkapass", "coords": []}}`)

	res := legacyPost(t, router, `null`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("null body status = %d, body = %s", res.Code, res.Body.String())
	}
	entries := legacyGet(t, router)
	if len(entries) != 1 || entries[0]["name"] != "Furkapass" {
		t.Fatalf("entries after null POST = %v", entries)
	}
}

func TestLegacyRejectsUnknownShape(t *testing.T) {
	_, router := newLegacyTestApp(t)
	if res := legacyPost(t, router, `{"something": "else"}`); res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
	if res := legacyPost(t, router, `42`); res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}
