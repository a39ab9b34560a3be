package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"roadeagle/mailer"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	adminCookieName          = "roadeagle_admin_session"
	adminSessionDuration     = 8 * time.Hour
	placeSearchDebounce      = 400 * time.Millisecond
	placeSearchMinQueryLen   = 3
	placeSearchMaxResults    = 5
	recentSearchesMaxEntries = 5
	autoZoomLevel            = 14
	devCORSOriginLocalhost   = "http://localhost:3000"
	devCORSOriginLoopback    = "http://127.0.0.1:3000"
	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
)

var passTypes = []string{"pass", "road", "transit", "scenic", "branch", "tour"}

type Config struct {
	Addr                   string
	Env                    string
	DatabaseURL            string
	DataRoot               string
	PublicBaseURL          string
	AppSigningSecret       string
	ExportEmailTo          string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	GeocoderProvider       string
	GeocoderCountryCodes   string
	MapboxAccessToken      string
	ResendAPIKey           string
	MailerFromAddresses    map[string]string
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	geocoder Geocoder
	routes   RoutePlanner
	mailer   *mailer.Mailer

	legacy *LegacyPassFile

	// test hooks for handlers
	adminAuthenticate func(ctx context.Context, email, password string) error
	publicListPasses  func(ctx context.Context) ([]Pass, error)
	adminListPasses   func(ctx context.Context, filters map[string]any) ([]Pass, error)
	adminGetPass      func(ctx context.Context, id string) (*Pass, error)
	adminInsertPass   func(ctx context.Context, pass Pass) error
	adminUpdatePass   func(ctx context.Context, pass Pass) error
	adminPatchPass    func(ctx context.Context, id string, fields map[string]any) error
	adminDeletePass   func(ctx context.Context, id string) error
	adminUpsertPass   func(ctx context.Context, pass Pass) error
	adminListExports  func(ctx context.Context) ([]ExportBatch, error)
}

type AdminSession struct {
	Email string `json:"email"`
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := loadDotEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var geocoder Geocoder
	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{
		UserAgent:    "RoadEagle-API/1.0",
		CountryCodes: cfg.GeocoderCountryCodes,
		Client:       httpClient,
	}
	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox
	case "nominatim":
		geocoder = nominatim
	default:
		geocoder = &FallbackGeocoder{Primary: nominatim, Secondary: mapbox}
	}

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
		logger.Info("mailer initialized", "provider", "resend")
	} else {
		mailProvider = mailer.NewLogProvider(logger)
		logger.Info("mailer initialized", "provider", "log")
	}
	mailClient := mailer.New(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()])

	app := &App{
		cfg:      cfg,
		db:       db,
		log:      logger,
		geocoder: geocoder,
		routes:   &OSRMRoutePlanner{Client: httpClient},
		mailer:   mailClient,
		legacy:   NewLegacyPassFile(filepath.Join(cfg.DataRoot, "data", "passes.json")),
	}
	app.initStoreHooks()

	logger.Info("runtime configuration", "env", cfg.Env, "addr", cfg.Addr, "geocoder", cfg.GeocoderProvider)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "run-export" {
		batch, err := app.generateExportBatch(ctx, map[string]any{}, AdminSession{Email: "scheduler"})
		if err != nil {
			panic(err)
		}
		logger.Info("scheduled export generated", "export_id", batch.ID, "rows", batch.RowCount)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "refresh-statuses" {
		count, err := app.refreshStoredStatuses(ctx, time.Now())
		if err != nil {
			panic(err)
		}
		logger.Info("stored statuses refreshed", "count", count)
		return
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		panic(err)
	}

	for _, dir := range []string{"data", "exports", "state"} {
		if err := os.MkdirAll(filepath.Join(cfg.DataRoot, dir), 0o755); err != nil {
			panic(err)
		}
	}

	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(app.loggingMiddleware())
	r.Use(app.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	app.registerRoutes(r)

	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func (a *App) initStoreHooks() {
	a.adminAuthenticate = a.authenticateAdminCredentials
	a.publicListPasses = a.storeListVisiblePasses
	a.adminListPasses = a.storeListPasses
	a.adminGetPass = a.storeGetPassByID
	a.adminInsertPass = a.storeInsertPass
	a.adminUpdatePass = a.storeUpdatePass
	a.adminPatchPass = a.storePatchPass
	a.adminDeletePass = a.storeDeletePass
	a.adminUpsertPass = a.storeUpsertPass
	a.adminListExports = a.storeListExportBatches
}

func (a *App) registerRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/passes", a.publicPassesHandler)
		api.GET("/passes/:id", a.publicPassDetailHandler)
		api.GET("/countries", a.countriesHandler)
		api.GET("/levels", a.levelsHandler)
		api.GET("/geocode", a.geocodeHandler)

		auth := api.Group("/admin/auth")
		{
			auth.POST("/login", a.adminLoginHandler)
			auth.POST("/logout", a.adminLogoutHandler)
			auth.GET("/session", a.adminSessionHandler)
		}

		admin := api.Group("/admin")
		admin.Use(a.requireAdminSession())
		{
			admin.GET("/passes", a.adminListPassesHandler)
			admin.POST("/passes", a.adminCreatePassHandler)
			admin.PUT("/passes/:id", a.adminUpdatePassHandler)
			admin.POST("/passes/batch", a.adminBatchSaveHandler)
			admin.POST("/passes/import", a.adminImportPassesHandler)
			admin.DELETE("/passes/:id", a.adminDeletePassHandler)
			admin.POST("/passes/:id/restore", a.adminRestorePassHandler)
			admin.POST("/route", a.adminRouteHandler)
			admin.GET("/exports", a.adminExportsHandler)
			admin.POST("/exports/generate", a.adminGenerateExportHandler)
			admin.GET("/exports/:id/download", a.adminExportDownloadHandler)
		}
	}

	// legacy flat-file pass list, kept for the old admin panel
	legacy := r.Group("/api")
	{
		legacy.GET("/passes", a.legacyListHandler)
		legacy.POST("/passes", a.legacyMutateHandler)
	}
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if publicBase == "" {
		publicBase = "https://roadeagle.org"
	}
	publicBase = strings.TrimRight(publicBase, "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:                   valueOrDefault("GIN_ADDR", ":8080"),
		Env:                    env,
		DatabaseURL:            databaseURL,
		DataRoot:               valueOrDefault("DATA_ROOT", "/var/lib/roadeagle"),
		PublicBaseURL:          publicBase,
		AppSigningSecret:       secret,
		ExportEmailTo:          valueOrDefault("EXPORT_EMAIL_TO", "ops@roadeagle.local"),
		BootstrapAdminEmail:    strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
		GeocoderProvider:       strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		GeocoderCountryCodes:   valueOrDefault("GEOCODER_COUNTRY_CODES", "ch,de,fr,it,at,li,lu"),
		MapboxAccessToken:      strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		ResendAPIKey:           strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@mail.roadeagle.org"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@roadeagle.local"),
		},
	}

	return cfg, nil
}

func loadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) bootstrapAdmin(ctx context.Context) error {
	email := a.cfg.BootstrapAdminEmail
	password := a.cfg.BootstrapAdminPassword
	if email == "" || password == "" {
		a.log.Info("bootstrap admin not configured")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			is_active = TRUE,
			updated_at = NOW()
	`, email, string(hash))
	if err != nil {
		return err
	}

	a.log.Info("bootstrap admin ensured", "email", email)
	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}
