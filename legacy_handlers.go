package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
)

// LegacyPassFile is the flat JSON list the old admin panel edits directly.
// Entries are kept as loose maps: the legacy clients send shapes the relational
// schema never normalized.
type LegacyPassFile struct {
	mu   sync.Mutex
	path string
}

func NewLegacyPassFile(path string) *LegacyPassFile {
	return &LegacyPassFile{path: path}
}

func (f *LegacyPassFile) load() ([]map[string]any, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []map[string]any{}, nil
		}
		return nil, err
	}
	var entries []map[string]any
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	return entries, nil
}

func (f *LegacyPassFile) save(entries []map[string]any) error {
	content, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.path, content, 0o644)
}

func (f *LegacyPassFile) List() ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *LegacyPassFile) Append(entry map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return f.save(entries)
}

func (f *LegacyPassFile) DeleteAt(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_index", Message: "deleteIndex out of range"}
	}
	entries = append(entries[:index], entries[index+1:]...)
	return f.save(entries)
}

func (f *LegacyPassFile) Replace(entries []map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entries == nil {
		entries = []map[string]any{}
	}
	return f.save(entries)
}

func (a *App) legacyListHandler(c *gin.Context) {
	entries, err := a.legacy.List()
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, entries)
}

// legacyMutateHandler accepts the three legacy mutation shapes on one route:
// {"newPass": {...}} appends, {"deleteIndex": n} removes, and a bare array
// replaces the whole list.
func (a *App) legacyMutateHandler(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	// json.Unmarshal accepts `null` into a slice, so the replace path must
	// check for an actual array literal or a null body would wipe the file.
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var replacement []map[string]any
		if err := json.Unmarshal(trimmed, &replacement); err != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "request body must be a pass object, a deleteIndex, or an array"})
			return
		}
		if err := a.legacy.Replace(replacement); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(replacement)})
		return
	}

	var body struct {
		NewPass     map[string]any `json:"newPass"`
		DeleteIndex *int           `json:"deleteIndex"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "request body must be a pass object, a deleteIndex, or an array"})
		return
	}

	switch {
	case body.NewPass != nil:
		name, _ := body.NewPass["name"].(string)
		if name == "" {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_pass", Message: "newPass.name is required"})
			return
		}
		if _, ok := body.NewPass["coords"].([]any); !ok {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_pass", Message: "newPass.coords must be an array"})
			return
		}
		if err := a.legacy.Append(body.NewPass); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case body.DeleteIndex != nil:
		if err := a.legacy.DeleteAt(*body.DeleteIndex); err != nil {
			writeAPIError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	default:
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "request body must be a pass object, a deleteIndex, or an array"})
	}
}
