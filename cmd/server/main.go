/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the partner settlement server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Apply command-line flag overrides and validate
  3. Initialize the zap logger
  4. Open the session table backend (memory or SQLite)
  5. Build the access gate, mailer and session registry
  6. Start the idle session reaper
  7. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  -port      HTTP server port (overrides PORT)
  -backend   memory | sqlite (overrides STORE_BACKEND)
  -db        SQLite database path (overrides SQLITE_PATH)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reaper and close the database
  4. Exit

EXAMPLES:
  # Development, in-memory tables, password from .env
  ACCESS_PASSWORD=secret ./server

  # SQLite file backend on a different port
  ./server -backend=sqlite -db=./data/settlement.db -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/partner-settlement/api"
	"github.com/warp/partner-settlement/auth"
	"github.com/warp/partner-settlement/config"
	"github.com/warp/partner-settlement/logger"
	"github.com/warp/partner-settlement/notify"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/store/sqlite"
)

func main() {
	// Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port")
	backend := flag.String("backend", cfg.StoreBackend, "Session table backend: memory or sqlite")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path (\":memory:\" for in-memory)")
	flag.Parse()
	cfg.Port, cfg.StoreBackend, cfg.SQLitePath = *port, *backend, *dbPath

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logger
	appLogger := logger.NewZapLogger(logger.ForEnv(cfg.AppEnv, cfg.LogLevel))
	defer appLogger.Sync()

	// Session tables
	var tables session.Backend = session.MemoryBackend{}
	if cfg.StoreBackend == "sqlite" {
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			appLogger.Fatal("Failed to initialize database", zap.String("path", cfg.SQLitePath), zap.Error(err))
		}
		defer db.Close()
		tables = session.SQLiteBackend{DB: db}
	}
	registry := session.NewRegistry(tables, appLogger)

	// Access gate and mail
	gate, err := auth.NewGate(cfg.AccessPassword, cfg.AccessPasswordHash, cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		appLogger.Fatal("Failed to initialize access gate", zap.Error(err))
	}
	mailer := notify.New(notify.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, appLogger)
	if !mailer.Configured() {
		appLogger.Warn("SMTP_HOST not set, report email is disabled")
	}

	// Sessions are unreachable once their token expires
	reaper := session.NewReaper(registry, cfg.TokenTTL, appLogger)
	reaper.Start()
	defer reaper.Stop()

	// Handler and router
	handler := api.NewHandler(registry, gate, mailer, appLogger)
	handler.MaxUploadBytes = cfg.MaxUploadBytes
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Server starting",
			zap.String("addr", "http://localhost:"+cfg.Port),
			zap.String("env", cfg.AppEnv),
			zap.String("backend", cfg.StoreBackend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
