package main

import (
	"context"
	"errors"
	"flag"

	"github.com/dvloznov/tallysync/internal/config"
	infraBQ "github.com/dvloznov/tallysync/internal/infra/bigquery"
	"github.com/dvloznov/tallysync/internal/logger"
)

var errNoProject = errors.New("-project flag or BQ_PROJECT_ID is required")

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "YAML configuration file")
		projectID  = flag.String("project", "", "GCP project ID (overrides config)")
		datasetID  = flag.String("dataset", "", "BigQuery dataset ID (overrides config)")
		table      = flag.String("table", "", "exports table name (overrides config)")
		location   = flag.String("location", "US", "dataset location used when the dataset is created")
	)
	flag.Parse()

	log := logger.New()

	cfg, _, err := config.Load(config.Options{ConfigFile: *configFile, DotEnvFile: ".env"}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	target, err := resolveTarget(cfg.API.BigQuery, *projectID, *datasetID, *table)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid target")
	}

	ctx := context.Background()
	repo, err := infraBQ.NewExportRepository(ctx, target.ProjectID, target.Dataset, target.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer repo.Close()

	log.Info().
		Str("project", target.ProjectID).
		Str("dataset", target.Dataset).
		Str("table", target.Table).
		Msg("Ensuring export audit schema")

	if err := repo.EnsureDataset(ctx, *location); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure dataset")
	}
	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure table")
	}

	log.Info().Msg("Export audit schema is up to date")
}

// resolveTarget applies non-empty flag values over the configured ones.
func resolveTarget(cfg config.BigQueryConfig, project, dataset, table string) (config.BigQueryConfig, error) {
	if project != "" {
		cfg.ProjectID = project
	}
	if dataset != "" {
		cfg.Dataset = dataset
	}
	if table != "" {
		cfg.Table = table
	}
	if cfg.ProjectID == "" {
		return cfg, errNoProject
	}
	if cfg.Dataset == "" {
		cfg.Dataset = "tallysync"
	}
	return cfg, nil
}
