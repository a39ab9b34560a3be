package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const passColumns = `
	id, name, type, status, opens_at, closes_at, countries, canton, region,
	level, length_km, height_m, coords, marker_lat, marker_lng,
	circle_center_lat, circle_center_lng, circle_radius, hidden,
	description_de, description_en, description_fr, description_it,
	created_at::text, updated_at::text
`

type passScanner interface {
	Scan(dest ...any) error
}

func scanPass(row passScanner) (Pass, error) {
	var pass Pass
	var coordsRaw []byte
	err := row.Scan(
		&pass.ID, &pass.Name, &pass.Type, &pass.Status, &pass.OpensAt, &pass.ClosesAt,
		&pass.Countries, &pass.Canton, &pass.Region, &pass.Level,
		&pass.LengthKM, &pass.HeightM, &coordsRaw,
		&pass.MarkerLat, &pass.MarkerLng,
		&pass.CircleCenterLat, &pass.CircleCenterLng, &pass.CircleRadius,
		&pass.Hidden,
		&pass.DescriptionDE, &pass.DescriptionEN, &pass.DescriptionFR, &pass.DescriptionIT,
		&pass.CreatedAt, &pass.UpdatedAt,
	)
	if err != nil {
		return Pass{}, err
	}
	if len(coordsRaw) > 0 {
		if err := json.Unmarshal(coordsRaw, &pass.Coords); err != nil {
			return Pass{}, fmt.Errorf("pass %s has invalid coords: %w", pass.ID, err)
		}
	}
	return pass, nil
}

func (a *App) collectPasses(rows *sql.Rows) ([]Pass, error) {
	defer rows.Close()
	passes := []Pass{}
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, pass)
	}
	return passes, rows.Err()
}

func (a *App) storeListVisiblePasses(ctx context.Context) ([]Pass, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT `+passColumns+` FROM passes WHERE hidden = FALSE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return a.collectPasses(rows)
}

// buildPassWhereClause translates the admin table filters into SQL predicates.
// The "always_open" status sentinel selects rows whose status column is NULL.
func buildPassWhereClause(filters map[string]any) (string, []any) {
	clauses := []string{}
	args := []any{}
	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if q, ok := filters["q"].(string); ok && strings.TrimSpace(q) != "" {
		clauses = append(clauses, "name ILIKE "+next())
		args = append(args, "%"+strings.TrimSpace(q)+"%")
	}
	if passType, ok := filters["type"].(string); ok && passType != "" {
		clauses = append(clauses, "type = "+next())
		args = append(args, passType)
	}
	if statuses, ok := filters["statuses"].([]string); ok && len(statuses) > 0 {
		parts := []string{}
		for _, status := range statuses {
			if status == "always_open" {
				parts = append(parts, "status IS NULL")
				continue
			}
			parts = append(parts, "status = "+next())
			args = append(args, status)
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	if country, ok := filters["country"].(string); ok && country != "" {
		clauses = append(clauses, "countries ILIKE "+next())
		args = append(args, "%"+strings.TrimSpace(country)+"%")
	}
	if hidden, ok := filters["hidden"].(bool); ok {
		clauses = append(clauses, "hidden = "+next())
		args = append(args, hidden)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (a *App) storeListPasses(ctx context.Context, filters map[string]any) ([]Pass, error) {
	where, args := buildPassWhereClause(filters)
	rows, err := a.db.QueryContext(ctx, `SELECT `+passColumns+` FROM passes`+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	return a.collectPasses(rows)
}

func (a *App) storeGetPassByID(ctx context.Context, id string) (*Pass, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE id = $1`, id)
	pass, err := scanPass(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "pass not found"}
		}
		return nil, err
	}
	return &pass, nil
}

func marshalCoords(coords []LatLng) ([]byte, error) {
	if coords == nil {
		coords = []LatLng{}
	}
	return json.Marshal(coords)
}

func (a *App) storeInsertPass(ctx context.Context, pass Pass) error {
	coords, err := marshalCoords(pass.Coords)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO passes (
			id, name, type, status, opens_at, closes_at, countries, canton, region,
			level, length_km, height_m, coords, marker_lat, marker_lng,
			circle_center_lat, circle_center_lng, circle_radius, hidden,
			description_de, description_en, description_fr, description_it
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23
		)
	`,
		pass.ID, pass.Name, pass.Type, pass.Status, pass.OpensAt, pass.ClosesAt,
		pass.Countries, pass.Canton, pass.Region, pass.Level,
		pass.LengthKM, pass.HeightM, coords,
		pass.MarkerLat, pass.MarkerLng,
		pass.CircleCenterLat, pass.CircleCenterLng, pass.CircleRadius,
		pass.Hidden,
		pass.DescriptionDE, pass.DescriptionEN, pass.DescriptionFR, pass.DescriptionIT,
	)
	return err
}

func (a *App) storeUpdatePass(ctx context.Context, pass Pass) error {
	coords, err := marshalCoords(pass.Coords)
	if err != nil {
		return err
	}
	result, err := a.db.ExecContext(ctx, `
		UPDATE passes SET
			name = $2, type = $3, status = $4, opens_at = $5, closes_at = $6,
			countries = $7, canton = $8, region = $9, level = $10,
			length_km = $11, height_m = $12, coords = $13,
			marker_lat = $14, marker_lng = $15,
			circle_center_lat = $16, circle_center_lng = $17, circle_radius = $18,
			hidden = $19,
			description_de = $20, description_en = $21, description_fr = $22, description_it = $23,
			updated_at = NOW()
		WHERE id = $1
	`,
		pass.ID, pass.Name, pass.Type, pass.Status, pass.OpensAt, pass.ClosesAt,
		pass.Countries, pass.Canton, pass.Region, pass.Level,
		pass.LengthKM, pass.HeightM, coords,
		pass.MarkerLat, pass.MarkerLng,
		pass.CircleCenterLat, pass.CircleCenterLng, pass.CircleRadius,
		pass.Hidden,
		pass.DescriptionDE, pass.DescriptionEN, pass.DescriptionFR, pass.DescriptionIT,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "pass not found"}
	}
	return nil
}

// patchablePassColumns is the whitelist for staged partial updates coming from
// the admin table editor.
var patchablePassColumns = map[string]string{
	"name":       "name",
	"type":       "type",
	"status":     "status",
	"opens_at":   "opens_at",
	"closes_at":  "closes_at",
	"countries":  "countries",
	"canton":     "canton",
	"region":     "region",
	"level":      "level",
	"length":     "length_km",
	"height":     "height_m",
	"marker_lat": "marker_lat",
	"marker_lng": "marker_lng",
	"hidden":     "hidden",
}

func (a *App) storePatchPass(ctx context.Context, id string, fields map[string]any) error {
	sets := []string{}
	args := []any{id}
	for key, value := range fields {
		column, ok := patchablePassColumns[key]
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Code: "invalid_field", Message: fmt.Sprintf("field %q cannot be updated", key)}
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	result, err := a.db.ExecContext(ctx, `UPDATE passes SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "pass not found"}
	}
	return nil
}

func (a *App) storeDeletePass(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM passes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "pass not found"}
	}
	return nil
}

func (a *App) storeUpsertPass(ctx context.Context, pass Pass) error {
	coords, err := marshalCoords(pass.Coords)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO passes (
			id, name, type, status, opens_at, closes_at, countries, canton, region,
			level, length_km, height_m, coords, marker_lat, marker_lng,
			circle_center_lat, circle_center_lng, circle_radius, hidden,
			description_de, description_en, description_fr, description_it
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			opens_at = EXCLUDED.opens_at,
			closes_at = EXCLUDED.closes_at,
			countries = EXCLUDED.countries,
			canton = EXCLUDED.canton,
			region = EXCLUDED.region,
			level = EXCLUDED.level,
			length_km = EXCLUDED.length_km,
			height_m = EXCLUDED.height_m,
			coords = EXCLUDED.coords,
			marker_lat = EXCLUDED.marker_lat,
			marker_lng = EXCLUDED.marker_lng,
			circle_center_lat = EXCLUDED.circle_center_lat,
			circle_center_lng = EXCLUDED.circle_center_lng,
			circle_radius = EXCLUDED.circle_radius,
			hidden = EXCLUDED.hidden,
			description_de = EXCLUDED.description_de,
			description_en = EXCLUDED.description_en,
			description_fr = EXCLUDED.description_fr,
			description_it = EXCLUDED.description_it,
			updated_at = NOW()
	`,
		pass.ID, pass.Name, pass.Type, pass.Status, pass.OpensAt, pass.ClosesAt,
		pass.Countries, pass.Canton, pass.Region, pass.Level,
		pass.LengthKM, pass.HeightM, coords,
		pass.MarkerLat, pass.MarkerLng,
		pass.CircleCenterLat, pass.CircleCenterLng, pass.CircleRadius,
		pass.Hidden,
		pass.DescriptionDE, pass.DescriptionEN, pass.DescriptionFR, pass.DescriptionIT,
	)
	return err
}

// refreshStoredStatuses persists the derived seasonal statuses so API reads and
// exports see the same values without re-deriving.
func (a *App) refreshStoredStatuses(ctx context.Context, now time.Time) (int, error) {
	passes, err := a.storeListPasses(ctx, map[string]any{})
	if err != nil {
		return 0, err
	}
	derived := derivePassStatuses(passes, now)

	updated := 0
	for i, pass := range derived {
		before := passes[i].statusValue()
		after := pass.statusValue()
		if before == after {
			continue
		}
		if _, err := a.db.ExecContext(ctx, `UPDATE passes SET status = $2, updated_at = NOW() WHERE id = $1`, pass.ID, pass.Status); err != nil {
			a.log.Error("status refresh failed", "id", pass.ID, "err", err)
			continue
		}
		updated++
	}
	return updated, nil
}

func (a *App) authenticateAdminCredentials(ctx context.Context, email, password string) error {
	var hash string
	var isActive bool
	err := a.db.QueryRowContext(ctx, `SELECT password_hash, is_active FROM admins WHERE email = $1`, email).Scan(&hash, &isActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid email or password"}
		}
		return err
	}
	if !isActive {
		return &apiError{Status: http.StatusUnauthorized, Code: "account_disabled", Message: "account is disabled"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid email or password"}
	}
	return nil
}
