// Command sitesync serves the website knowledge sync API over HTTP and,
// optionally, MCP on stdio.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sitesync/dbopen"
	"github.com/hazyhaar/sitesync/kit"
	"github.com/hazyhaar/sitesync/observability"
	"github.com/hazyhaar/sitesync/shield"
	"github.com/hazyhaar/sitesync/sitesync"
)

func main() {
	port := env("PORT", "8090")
	dbPath := env("DB_PATH", "db/sitesync.db")
	configFile := env("CONFIG_FILE", "")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// stdout carries MCP frames when MCP_STDIO is set.
	logOut := os.Stdout
	if os.Getenv("MCP_STDIO") != "" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := &sitesync.Config{}
	if configFile != "" {
		loaded, err := sitesync.LoadConfigFile(configFile)
		if err != nil {
			slog.Error("config", "path", configFile, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Lock.RedisAddr = v
	}
	if v := os.Getenv("REDIS_CHANNEL"); v != "" {
		cfg.Notify.RedisChannel = v
	}
	if v := os.Getenv("EXTRACTOR_URL"); v != "" {
		cfg.ExtractorURL = v
	}
	if v := os.Getenv("SCHEDULER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.Workers = n
		}
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("db", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := observability.Init(db); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	auditLogger := observability.NewAuditLogger(db, 0, observability.WithAuditLogger(logger))
	defer auditLogger.Close()
	metrics := observability.NewMetricsManager(db, 0, 0, logger)
	defer metrics.Close()

	svc, err := sitesync.New(db, cfg, logger,
		sitesync.WithAudit(auditLogger),
		sitesync.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("sitesync service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		slog.Error("sitesync start", "error", err)
		os.Exit(1)
	}

	if os.Getenv("MCP_STDIO") != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "sitesync", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
			cancel()
		}()
	}

	perMinute, _ := strconv.Atoi(env("RATE_LIMIT_PER_MINUTE", "120"))
	rl := shield.NewRateLimiter(perMinute, 20, "/health")
	rl.StartGC(ctx.Done())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(rl) {
		r.Use(mw)
	}
	r.Use(kit.HTTPContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	svc.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// A manual run may take up to the max run duration.
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("sitesync starting", "port", port, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
