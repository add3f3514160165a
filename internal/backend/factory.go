package backend

import (
	"context"
	"fmt"
	"log/slog"

	applog "dindin/internal/log"
	"dindin/internal/sheets/gcs"
	gsheet "dindin/internal/sheets/google"
	"dindin/internal/sheets/memory"
	"dindin/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &Result{Store: store, Cleanup: store.Close}, nil
	case PostgresBackend:
		store, err := storage.NewPostgresStore(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return &Result{Store: store, Cleanup: store.Close}, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		store := storage.NewMemoryStore()
		return &Result{Store: store, Cleanup: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config ExportConfig) (*ExportResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsExport:
		exporter, err := gsheet.NewExporter(ctx, config.GoogleSpreadsheetID, gsheet.Credentials{
			JSON: config.GoogleCredentialsJSON,
			File: config.GoogleCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
		}
		f.logger.Info("Initialized Google Sheets exporter")
		return &ExportResult{Exporter: exporter}, nil
	case GCSExport:
		exporter, err := gcs.NewExporter(ctx, config.GCSBucket, config.GCSPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Cloud Storage exporter: %w", err)
		}
		f.logger.Info("Initialized Cloud Storage exporter", "bucket", config.GCSBucket)
		return &ExportResult{Exporter: exporter, Cleanup: exporter.Close}, nil
	case MemoryExport:
		f.logger.Info("Initialized memory exporter")
		return &ExportResult{Exporter: memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported export type: %s", config.Type)
	}
}
