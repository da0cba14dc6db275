// goban/main.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"goban/board"
	"goban/config"
	"goban/database"
	"goban/handlers"
	"goban/models"
	"goban/regen"
	"goban/utils"
)

type Application struct {
	store        *database.Store
	boards       *board.Service
	rateLimiter  *models.RateLimiter
	logger       *slog.Logger
	staticDir    string
	modKeyHash   string
	adminKeyHash string
}

// Methods to satisfy the handlers.App interface
func (a *Application) Store() *database.Store           { return a.store }
func (a *Application) Boards() *board.Service           { return a.boards }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Logger() *slog.Logger             { return a.logger }
func (a *Application) StaticDir() string                { return a.staticDir }
func (a *Application) ModKeyHash() string               { return a.modKeyHash }
func (a *Application) AdminKeyHash() string             { return a.adminKeyHash }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	saltBytes := make([]byte, 32)
	if _, err := rand.Read(saltBytes); err != nil {
		logger.Error("Failed to generate IP salt", "error", err)
		os.Exit(1)
	}
	utils.IPSalt = utils.GetEnv("GOBAN_IP_SALT", hex.EncodeToString(saltBytes))

	// --- External Configuration ---
	port := utils.GetEnv("GOBAN_PORT", "8080")
	dbPath := utils.GetEnv("GOBAN_DB_PATH", "./goban.db?_journal_mode=WAL&_foreign_keys=on")
	staticDir := utils.GetEnv("GOBAN_STATIC_DIR", "./static")
	modKeyHash := utils.GetEnv("GOBAN_MOD_KEY_HASH", "")
	adminKeyHash := utils.GetEnv("GOBAN_ADMIN_KEY_HASH", "")
	if modKeyHash == "" && adminKeyHash == "" {
		logger.Warn("No moderation keys configured, /mod endpoints are unusable")
	}

	if err := os.MkdirAll(staticDir, 0755); err != nil {
		logger.Error("FATAL: Could not create static directory", "path", staticDir, "error", err)
		os.Exit(1)
	}

	rateLimitEvery, err := time.ParseDuration(utils.GetEnv("GOBAN_RATE_EVERY", config.DefaultRateLimitEvery))
	if err != nil {
		logger.Warn("Invalid GOBAN_RATE_EVERY duration, using default", "value", utils.GetEnv("GOBAN_RATE_EVERY", ""), "default", config.DefaultRateLimitEvery)
		rateLimitEvery, _ = time.ParseDuration(config.DefaultRateLimitEvery)
	}
	rateLimitBurst, err := strconv.Atoi(utils.GetEnv("GOBAN_RATE_BURST", strconv.Itoa(config.DefaultRateLimitBurst)))
	if err != nil {
		logger.Warn("Invalid GOBAN_RATE_BURST integer, using default", "value", utils.GetEnv("GOBAN_RATE_BURST", ""), "default", config.DefaultRateLimitBurst)
		rateLimitBurst = config.DefaultRateLimitBurst
	}
	rateLimitPrune, err := time.ParseDuration(utils.GetEnv("GOBAN_RATE_PRUNE", config.DefaultRateLimitPrune))
	if err != nil {
		logger.Warn("Invalid GOBAN_RATE_PRUNE duration, using default", "value", utils.GetEnv("GOBAN_RATE_PRUNE", ""), "default", config.DefaultRateLimitPrune)
		rateLimitPrune, _ = time.ParseDuration(config.DefaultRateLimitPrune)
	}
	rateLimitExpire, err := time.ParseDuration(utils.GetEnv("GOBAN_RATE_EXPIRE", config.DefaultRateLimitExpire))
	if err != nil {
		logger.Warn("Invalid GOBAN_RATE_EXPIRE duration, using default", "value", utils.GetEnv("GOBAN_RATE_EXPIRE", ""), "default", config.DefaultRateLimitExpire)
		rateLimitExpire, _ = time.ParseDuration(config.DefaultRateLimitExpire)
	}

	store, err := database.InitStore(dbPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.DB.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	// --- File store init ---
	var files utils.FileStore
	if utils.GetEnv("GOBAN_S3_ENABLED", "false") == "true" {
		endpoint := utils.GetEnv("GOBAN_S3_ENDPOINT", "")
		accessKey := utils.GetEnv("GOBAN_S3_ACCESS_KEY", "")
		secretKey := utils.GetEnv("GOBAN_S3_SECRET_KEY", "")
		bucket := utils.GetEnv("GOBAN_S3_BUCKET", "")
		region := utils.GetEnv("GOBAN_S3_REGION", "us-east-1")
		publicURL := utils.GetEnv("GOBAN_S3_PUBLIC_URL", "")
		useSSL := utils.GetEnv("GOBAN_S3_USE_SSL", "true") == "true"

		s3, err := utils.NewS3Store(endpoint, accessKey, secretKey, bucket, region, publicURL, useSSL)
		if err != nil {
			logger.Error("Failed to initialize S3 file store", "error", err)
			os.Exit(1)
		}
		files = s3
		logger.Info("S3 file store initialized", "endpoint", endpoint, "bucket", bucket)
	} else {
		files = &utils.LocalStore{Root: staticDir}
		logger.Info("Local file store initialized", "dir", staticDir)
	}

	engine, err := regen.NewEngine(store, staticDir, logger)
	if err != nil {
		logger.Error("Failed to initialize regeneration engine", "error", err)
		os.Exit(1)
	}
	boards := board.NewService(store, files, engine, logger)

	// Render every board once so the static tree is complete at startup.
	boardIDs, err := store.ListBoardIDs()
	if err != nil {
		logger.Error("Failed to list boards", "error", err)
		os.Exit(1)
	}
	for _, id := range boardIDs {
		if err := engine.RebuildAll(id); err != nil {
			logger.Error("Initial rebuild failed", "board", id, "error", err)
			os.Exit(1)
		}
	}

	app := &Application{
		store:        store,
		boards:       boards,
		rateLimiter:  models.NewRateLimiter(rateLimitEvery, rateLimitBurst, rateLimitPrune, rateLimitExpire),
		logger:       logger,
		staticDir:    staticDir,
		modKeyHash:   modKeyHash,
		adminKeyHash: adminKeyHash,
	}

	mux := handlers.SetupRouter(app)

	// --- Graceful Shutdown ---
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("goban server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+port,
		"boards", len(boardIDs),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
