package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	gerrors "github.com/go-faster/errors"

	"compensation-service/internal/config"
	"compensation-service/internal/database"
	"compensation-service/internal/logging"
	"compensation-service/internal/repository"
	"compensation-service/internal/services"
)

func main() {
	seed := flag.String("tiers", "", "JSON file with tier definitions to publish after migrating")
	flag.Parse()

	config.LoadEnv(".env", "../.env")
	cfg, err := config.Load()
	log := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}

	log.Info("Running database migrations...")
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	if *seed != "" {
		catalog := services.NewTierCatalogService(repository.NewGormStore(db), log)
		if err := publishTiers(context.Background(), catalog, *seed); err != nil {
			log.WithError(err).Fatal("seed tiers")
		}
	}
	log.Info("Migrations completed successfully!")
}

// publishTiers publishes every tier in the file as a new version of its key.
func publishTiers(ctx context.Context, catalog *services.TierCatalogService, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return gerrors.Wrap(err, "read tier file")
	}
	var tiers []services.TierInput
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return gerrors.Wrap(err, "parse tier file")
	}
	for _, t := range tiers {
		if _, err := catalog.Publish(ctx, t); err != nil {
			return gerrors.Wrapf(err, "publish tier %s", t.Key)
		}
	}
	return nil
}
