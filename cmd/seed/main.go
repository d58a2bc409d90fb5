package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/lysyi3m/listing-comb/app/database"
)

type options struct {
	DBDriver string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Database driver"`
	DBDSN    string `long:"db-dsn" env:"DB_DSN" default:"./data/listings.db" description:"Database DSN"`
	Fixtures string `long:"fixtures" default:"./fixtures/sample.yml" description:"YAML fixture file"`
}

type repositories struct {
	*database.CategoryRepo
	*database.ListingRepo
}

func init() {
	_ = godotenv.Load()
}

// Loads categories, sellers and listings from a YAML file.
// Usage: go run ./cmd/seed --fixtures fixtures/sample.yml
func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if err := seed(opts); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(opts options) error {
	fixtures, err := LoadFixtures(opts.Fixtures)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if _, _, err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := repositories{
		CategoryRepo: database.NewCategoryRepository(db),
		ListingRepo:  database.NewListingRepository(db),
	}

	summary, err := Apply(ctx, store, fixtures, time.Now().UTC())
	if err != nil {
		return err
	}

	slog.Info("Seeding completed",
		"fixtures", opts.Fixtures,
		"categories", summary.Categories,
		"sellers", summary.Sellers,
		"listings", summary.Listings)

	return nil
}
