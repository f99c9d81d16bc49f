package main

import (
	"fmt"
	"log"

	"docbench/internal/assets"
	"docbench/internal/config"
	"docbench/internal/handler"
	"docbench/internal/port"
	"docbench/internal/preprocess"
	"docbench/internal/provider"
	"docbench/internal/router"
	"docbench/internal/service"
	s3storage "docbench/internal/storage/s3"

	// Adapter packages register their factories on import.
	_ "docbench/internal/provider/layoutparse"
	_ "docbench/internal/provider/ocrbatch"
	_ "docbench/internal/provider/syncocr"
	_ "docbench/internal/provider/vision"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Object storage is optional; without it the asset inliner falls back to
	// data URIs.
	var storage port.ObjectStorage
	if cfg.S3.Enabled() {
		storage, err = s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	} else {
		log.Printf("server: no S3 bucket configured, assets will be inlined as data URIs")
	}

	registry, err := provider.NewRegistry(cfg.Providers)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	log.Printf("server: %d providers registered (kinds: %v)", len(registry.IDs()), registry.Kinds())

	pre := preprocess.New(cfg.Parse.MaxPages)
	inliner := assets.New(storage, cfg.S3.Bucket)
	runSvc := service.NewRunService(registry, pre, inliner)

	parseH := handler.NewParseHandler(runSvc, &cfg.Parse)
	healthH := handler.NewHealthHandler()

	r := router.Setup(parseH, healthH, cfg.CORS.AllowedOrigins)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
