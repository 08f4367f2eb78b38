package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smitius/flea-market/internal/auth"
	"github.com/smitius/flea-market/internal/db"
	"github.com/smitius/flea-market/internal/item"
	"github.com/smitius/flea-market/internal/maintenance"
	"github.com/smitius/flea-market/internal/media"
	"github.com/smitius/flea-market/internal/observability"
	"github.com/smitius/flea-market/internal/settings"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole application from environment variables and
// returns the root handler.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, authRepo, authRepo, logger)
	authService.WithSecurityConfig(
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCKOUT_WINDOW_MINUTES", 15),
		envHoursOrDefault("SESSION_IDLE_TIMEOUT_HOURS", 2),
		envHoursOrDefault("REMEMBER_COOKIE_TTL_HOURS", 168),
		envDaysOrDefault("FAILED_ATTEMPT_RETENTION_DAYS", 7),
	)
	authHandler := auth.NewHandler(authService, EnvBoolOrDefault("COOKIE_SECURE", true))

	if adminUsername, adminPassword := os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD"); adminUsername != "" || adminPassword != "" {
		username := strings.TrimSpace(strings.ToLower(adminUsername))
		password := strings.TrimSpace(adminPassword)
		if username == "" || password == "" {
			_ = database.Close()
			return nil, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
		}
		if err := authRepo.UpsertAdminAccount(context.Background(), username, password); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	mediaStore, err := media.NewStore(envOrDefault("UPLOAD_DIR", "uploads"))
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init media store: %w", err)
	}
	uploadHandler := media.NewUploadHandler(mediaStore)

	itemRepo := item.NewRepository(database)
	itemHandler := item.NewHandler(itemRepo, mediaStore, logger)

	settingsRepo := settings.NewRepository(database)
	settingsHandler := settings.NewHandler(settingsRepo)

	cleanupHandler := maintenance.NewCleanupHandler(authService, logger, os.Getenv("CRON_SECRET"))

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 5),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.SessionMiddleware(authService, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /auth/logout", authed(authHandler.Logout))
	mux.Handle("POST /auth/password", authed(authHandler.ChangePassword))
	mux.Handle("GET /auth/sessions", authed(authHandler.ListSessions))
	mux.Handle("GET /auth/failed-attempts", authed(authHandler.ListFailedAttempts))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("GET /items", itemHandler.ListItems)
	mux.HandleFunc("GET /items/{id}", itemHandler.GetItem)
	mux.Handle("POST /items", authed(itemHandler.CreateItem))
	mux.Handle("PUT /items/{id}", authed(itemHandler.UpdateItem))
	mux.Handle("DELETE /items/{id}", authed(itemHandler.DeleteItem))
	mux.Handle("POST /items/{id}/images", authed(itemHandler.AddImage))
	mux.Handle("DELETE /items/{id}/images/{imageID}", authed(itemHandler.DeleteImage))
	mux.Handle("PUT /items/{id}/images/{imageID}/primary", authed(itemHandler.SetPrimaryImage))
	mux.Handle("POST /media/upload", authed(uploadHandler.Upload))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(mediaStore.Dir()))))
	mux.HandleFunc("GET /settings", settingsHandler.GetSettings)
	mux.Handle("PUT /settings", authed(settingsHandler.UpdateSettings))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
