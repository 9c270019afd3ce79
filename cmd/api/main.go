package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"corpora/api/internal/app"
	"corpora/api/internal/blob"
	"corpora/api/internal/config"
	"corpora/api/internal/export"
	"corpora/api/internal/revisions"
	"corpora/api/internal/search"
	"corpora/api/internal/session"
	"corpora/api/internal/store"
)

type sessionBackend interface {
	app.SessionStore
	Close() error
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	for _, name := range applied {
		log.Printf("applied migration %s", name)
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		log.Fatalf("failed to create revisions dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	revisionService := revisions.New(cfg.RevisionsDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var sessions sessionBackend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		sessions = redisStore
	} else {
		log.Printf("Using in-memory session storage; sessions end on restart")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	// Pictures are optional: without object storage the upload endpoint answers 503.
	var pictures *blob.Pictures
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := blob.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: picture storage unavailable: %v", err)
		} else {
			pictures = blob.NewPictures(objects, cfg.PublicUploadsURL, cfg.MaxPictureBytes)
		}
	}

	exportService := export.NewService(cfg.PandocPath, cfg.ExportTimeout)

	service := app.New(cfg, dataStore, sessions, revisionService, pictures, searchService, exportService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	if err := httpServer.TrustProxies(cfg.TrustedProxies); err != nil {
		log.Fatalf("config: %v", err)
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ExportTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Corpora API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
