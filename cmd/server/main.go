package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JustJay7/legal-costs-drafter/internal/cache"
	"github.com/JustJay7/legal-costs-drafter/internal/config"
	"github.com/JustJay7/legal-costs-drafter/internal/database"
	"github.com/JustJay7/legal-costs-drafter/internal/server"
	"github.com/JustJay7/legal-costs-drafter/pkg/logger"
)

func main() {
	var (
		migrate  bool
		seedFile string
	)
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations and exit")
	flag.StringVar(&seedFile, "seed", "", "Load a rate schedule seed file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		log.Info("Database migrations completed successfully")
		return
	}

	store := database.NewStore(db)
	if seedFile != "" {
		n, err := database.SeedRates(context.Background(), store, seedFile)
		if err != nil {
			log.Fatal("Failed to seed rates", "file", seedFile, "error", err)
		}
		log.Info("Rate seed loaded", "file", seedFile, "added", n)
		return
	}
	if cfg.RateSeedFile != "" {
		n, err := database.SeedRates(context.Background(), store, cfg.RateSeedFile)
		if err != nil {
			log.Fatal("Failed to seed rates", "file", cfg.RateSeedFile, "error", err)
		}
		log.Info("Rate seed loaded", "file", cfg.RateSeedFile, "added", n)
	}

	cacheService := cache.NewCache(cfg.CacheSize, cfg.CacheTTL)

	srv := server.New(cfg, db, cacheService, log)

	log.Info("Starting Legal Costs Drafter",
		"host", cfg.Host,
		"port", cfg.Port,
		"vat_rate", cfg.VATRate.String(),
		"pdf", cfg.PDFEnabled,
	)

	if err := srv.Run(); err != nil {
		log.Fatal("Server failed to start", "error", err)
	}
}
