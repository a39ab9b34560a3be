package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"roadeagle/mailer"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
)

type ExportBatch struct {
	ID            int     `json:"id"`
	GeneratedAt   string  `json:"generated_at"`
	GeneratedBy   string  `json:"generated_by"`
	RowCount      int     `json:"row_count"`
	FilterType    *string `json:"filter_type,omitempty"`
	FilterCountry *string `json:"filter_country,omitempty"`
}

type exportArtifacts struct {
	CSV     string
	GeoJSON string
	PDF     []byte
}

func (a *App) adminExportsHandler(c *gin.Context) {
	exports, err := a.adminListExports(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, exports)
}

func (a *App) adminGenerateExportHandler(c *gin.Context) {
	session, err := getAdminSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Admin session required"})
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}

	batch, err := a.generateExportBatch(c.Request.Context(), body, session)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (a *App) generateExportBatch(ctx context.Context, input map[string]any, session AdminSession) (*ExportBatch, error) {
	passType, _ := input["type"].(string)
	if passType != "" && !containsString(passTypes, passType) {
		return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_type", Message: "unknown pass type"}
	}
	country, _ := input["country"].(string)
	country = strings.TrimSpace(country)

	filters := map[string]any{}
	if passType != "" {
		filters["type"] = passType
	}
	if country != "" {
		filters["country"] = country
	}

	passes, err := a.adminListPasses(ctx, filters)
	if err != nil {
		return nil, err
	}
	passes = derivePassStatuses(passes, time.Now())

	titleParts := []string{"Road Eagle Export"}
	if passType != "" {
		titleParts = append(titleParts, "Type: "+passType)
	}
	if country != "" {
		titleParts = append(titleParts, "Country: "+strings.ToUpper(country))
	}
	title := strings.Join(titleParts, " - ")

	artifacts, err := buildExportArtifacts(passes, title)
	if err != nil {
		return nil, err
	}

	var filterType, filterCountry sql.NullString
	if passType != "" {
		filterType = sql.NullString{String: passType, Valid: true}
	}
	if country != "" {
		filterCountry = sql.NullString{String: country, Valid: true}
	}

	var exportID int
	if err := a.db.QueryRowContext(ctx, `
		INSERT INTO exports (generated_by, row_count, csv_path, geojson_path, pdf_path, filter_type, filter_country)
		VALUES ($1, $2, '', '', '', $3, $4)
		RETURNING id
	`, session.Email, len(passes), filterType, filterCountry).Scan(&exportID); err != nil {
		return nil, err
	}

	exportDir := filepath.Join(a.cfg.DataRoot, "exports", strconv.Itoa(exportID))
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, err
	}

	baseName := fmt.Sprintf("roadeagle-%d", exportID)
	csvFile := filepath.Join(exportDir, baseName+".csv")
	geoFile := filepath.Join(exportDir, baseName+".geojson")
	pdfFile := filepath.Join(exportDir, baseName+".pdf")

	if err := os.WriteFile(csvFile, []byte(artifacts.CSV), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(geoFile, []byte(artifacts.GeoJSON), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pdfFile, artifacts.PDF, 0o644); err != nil {
		return nil, err
	}

	relCSV, _ := filepath.Rel(a.cfg.DataRoot, csvFile)
	relGeo, _ := filepath.Rel(a.cfg.DataRoot, geoFile)
	relPDF, _ := filepath.Rel(a.cfg.DataRoot, pdfFile)

	if _, err := a.db.ExecContext(ctx, `
		UPDATE exports
		SET csv_path = $1, geojson_path = $2, pdf_path = $3
		WHERE id = $4
	`, relCSV, relGeo, relPDF, exportID); err != nil {
		return nil, err
	}

	if _, err := a.mailer.Send(mailer.Message{
		To:      []string{a.cfg.ExportEmailTo},
		Subject: fmt.Sprintf("[Road Eagle] export %d generated", exportID),
		Text: fmt.Sprintf(
			"Export %d generated with %d passes. Download at %s",
			exportID, len(passes), buildPublicURL(a.cfg.PublicBaseURL, fmt.Sprintf("/admin/exports/%d", exportID)),
		),
	}); err != nil {
		a.log.Error("export notification failed", "export_id", exportID, "err", err)
	}

	batch := &ExportBatch{
		ID:          exportID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		GeneratedBy: session.Email,
		RowCount:    len(passes),
	}
	if filterType.Valid {
		batch.FilterType = &filterType.String
	}
	if filterCountry.Valid {
		batch.FilterCountry = &filterCountry.String
	}
	return batch, nil
}

func buildExportArtifacts(passes []Pass, title string) (exportArtifacts, error) {
	sorted := append([]Pass{}, passes...)
	sortPassesByName(sorted)

	csvData, err := buildCSV(sorted)
	if err != nil {
		return exportArtifacts{}, err
	}
	geoJSON, err := buildGeoJSON(sorted)
	if err != nil {
		return exportArtifacts{}, err
	}
	pdfData, err := buildPDF(sorted, title)
	if err != nil {
		return exportArtifacts{}, err
	}

	return exportArtifacts{CSV: csvData, GeoJSON: geoJSON, PDF: pdfData}, nil
}

func buildCSV(passes []Pass) (string, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	headers := []string{"id", "name", "type", "status", "opens_at", "closes_at", "countries", "level", "length_km", "height_m", "marker_lat", "marker_lng"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	floatCell := func(value *float64) string {
		if value == nil {
			return ""
		}
		return strconv.FormatFloat(*value, 'f', -1, 64)
	}
	stringCell := func(value *string) string {
		if value == nil {
			return ""
		}
		return *value
	}
	for _, pass := range passes {
		row := []string{
			pass.ID,
			pass.Name,
			pass.Type,
			stringCell(pass.Status),
			stringCell(pass.OpensAt),
			stringCell(pass.ClosesAt),
			pass.Countries,
			pass.Level,
			floatCell(pass.LengthKM),
			floatCell(pass.HeightM),
			floatCell(pass.MarkerLat),
			floatCell(pass.MarkerLng),
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// buildGeoJSON emits one Point feature per marker and one LineString per route.
func buildGeoJSON(passes []Pass) (string, error) {
	features := make([]map[string]any, 0, len(passes))
	for _, pass := range passes {
		properties := map[string]any{
			"id":        pass.ID,
			"name":      pass.Name,
			"type":      pass.Type,
			"status":    pass.Status,
			"countries": pass.Countries,
			"level":     pass.Level,
		}
		if pass.MarkerLat != nil && pass.MarkerLng != nil {
			features = append(features, map[string]any{
				"type": "Feature",
				"geometry": map[string]any{
					"type":        "Point",
					"coordinates": []float64{*pass.MarkerLng, *pass.MarkerLat},
				},
				"properties": properties,
			})
		}
		if pass.HasRoute() {
			coordinates := make([][]float64, 0, len(pass.Coords))
			for _, point := range pass.Coords {
				coordinates = append(coordinates, []float64{point.Lng, point.Lat})
			}
			features = append(features, map[string]any{
				"type": "Feature",
				"geometry": map[string]any{
					"type":        "LineString",
					"coordinates": coordinates,
				},
				"properties": properties,
			})
		}
	}
	payload := map[string]any{"type": "FeatureCollection", "features": features}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func buildPDF(passes []Pass, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, title)

	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total passes: %d", len(passes)))
	pdf.Ln(10)

	typeCounts := map[string]int{}
	statusCounts := map[string]int{}
	for _, pass := range passes {
		typeCounts[pass.Type]++
		if pass.Status != nil {
			statusCounts[*pass.Status]++
		} else {
			statusCounts["always open"]++
		}
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Type distribution")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	typeKeys := make([]string, 0, len(typeCounts))
	for key := range typeCounts {
		typeKeys = append(typeKeys, key)
	}
	sort.Slice(typeKeys, func(i, j int) bool { return typeCounts[typeKeys[i]] > typeCounts[typeKeys[j]] })
	for _, key := range typeKeys {
		pdf.Cell(0, 6, fmt.Sprintf("- %s: %d", key, typeCounts[key]))
		pdf.Ln(6)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Status distribution")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	statusKeys := make([]string, 0, len(statusCounts))
	for key := range statusCounts {
		statusKeys = append(statusKeys, key)
	}
	sort.Slice(statusKeys, func(i, j int) bool { return statusCounts[statusKeys[i]] > statusCounts[statusKeys[j]] })
	for _, key := range statusKeys {
		pdf.Cell(0, 6, fmt.Sprintf("- %s: %d", key, statusCounts[key]))
		pdf.Ln(6)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (a *App) adminExportDownloadHandler(c *gin.Context) {
	exportID, err := strconv.Atoi(c.Param("id"))
	if err != nil || exportID <= 0 {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_id", Message: "Invalid export ID"})
		return
	}
	format := strings.TrimSpace(c.Query("format"))
	if format != "geojson" && format != "pdf" {
		format = "csv"
	}

	contentType, body, fileName, err := a.getExportAsset(c.Request.Context(), exportID, format)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = c.Writer.Write(body)
}

func (a *App) getExportAsset(ctx context.Context, exportID int, format string) (string, []byte, string, error) {
	var csvPath, geojsonPath, pdfPath sql.NullString
	err := a.db.QueryRowContext(ctx, `
		SELECT csv_path, geojson_path, pdf_path
		FROM exports
		WHERE id = $1
	`, exportID).Scan(&csvPath, &geojsonPath, &pdfPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "Export batch not found"}
		}
		return "", nil, "", err
	}

	base := fmt.Sprintf("roadeagle-%d", exportID)
	var selectedPath string
	switch format {
	case "geojson":
		if !geojsonPath.Valid || geojsonPath.String == "" {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "GeoJSON artifact not found"}
		}
		selectedPath = geojsonPath.String
	case "pdf":
		if !pdfPath.Valid || pdfPath.String == "" {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "PDF artifact not found"}
		}
		selectedPath = pdfPath.String
	default:
		if !csvPath.Valid || csvPath.String == "" {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "CSV artifact not found"}
		}
		selectedPath = csvPath.String
	}

	content, err := os.ReadFile(filepath.Join(a.cfg.DataRoot, selectedPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "Export artifact not found"}
		}
		return "", nil, "", err
	}

	switch format {
	case "geojson":
		return "application/geo+json; charset=utf-8", content, base + ".geojson", nil
	case "pdf":
		return "application/pdf", content, base + ".pdf", nil
	default:
		return "text/csv; charset=utf-8", content, base + ".csv", nil
	}
}

func (a *App) storeListExportBatches(ctx context.Context) ([]ExportBatch, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, generated_by, row_count, created_at, filter_type, filter_country
		FROM exports
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]ExportBatch, 0)
	for rows.Next() {
		var batch ExportBatch
		var createdAt time.Time
		var filterType, filterCountry sql.NullString
		if err := rows.Scan(&batch.ID, &batch.GeneratedBy, &batch.RowCount, &createdAt, &filterType, &filterCountry); err != nil {
			return nil, err
		}
		batch.GeneratedAt = createdAt.UTC().Format(time.RFC3339)
		if filterType.Valid {
			batch.FilterType = &filterType.String
		}
		if filterCountry.Valid {
			batch.FilterCountry = &filterCountry.String
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}
