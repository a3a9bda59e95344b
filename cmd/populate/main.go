package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"propertyfinder/server/config"
	"propertyfinder/server/internal/database"
	"propertyfinder/server/internal/enrichment"
	"propertyfinder/server/internal/geocoding"
	"propertyfinder/server/internal/geometry"
	"propertyfinder/server/internal/processor"
	"propertyfinder/server/internal/sampling"
)

const defaultCenter = "-33.864869,151.1959212"

func main() {
	num := flag.Int("num", 500, "Number of records to add. Each record uses up to 3 Maps API requests (reverse geocode and two nearby searches).")
	centerFlag := flag.String("center", defaultCenter, "Center of the area locations are drawn from, as \"lat,lng\"")
	deleteExisting := flag.Bool("delete", false, "Delete existing records before populating")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	center, err := geometry.ParseCoordinate(*centerFlag)
	if err != nil {
		logger.WithError(err).Fatal("Invalid --center")
	}
	if *num < 0 {
		logger.Fatal("--num must not be negative")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(cfg.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	client, closeCache, err := geocoding.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize maps client")
	}
	defer closeCache()

	generator := sampling.NewGenerator(
		client,
		enrichment.NewEnricher(client, logger),
		processor.NewBatchWriter(db.GetDB(), cfg, logger),
		rand.New(rand.NewSource(time.Now().UnixNano())),
		logger,
	)

	inserted, err := generator.Generate(ctx, *num, center, *deleteExisting)
	if err != nil {
		logger.WithError(err).Error("Populate failed")
		stop()
		closeCache()
		db.Close()
		os.Exit(1)
	}
	logger.WithField("inserted", inserted).Info("Populate finished")
}
