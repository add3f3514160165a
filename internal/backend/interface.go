package backend

import (
	"context"

	"dindin/internal/sheets"
	"dindin/internal/storage"
)

// CleanupFunc releases resources held by a created backend.
type CleanupFunc func() error

// Result is a created store and its cleanup.
type Result struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

// ExportResult is a created exporter.
type ExportResult struct {
	Exporter sheets.Exporter
	Cleanup  CleanupFunc
}

// Factory creates stores and exporters from configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*Result, error)
	CreateExporter(ctx context.Context, config ExportConfig) (*ExportResult, error)
}

// Config selects and configures the storage backend.
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresDSN  string
}

// ExportConfig selects and configures the export target.
type ExportConfig struct {
	Type ExportType

	GoogleSpreadsheetID   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	GCSBucket string
	GCSPrefix string
}

// BackendType names a storage backend.
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// ExportType names an export target.
type ExportType string

const (
	MemoryExport ExportType = "memory"
	SheetsExport ExportType = "sheets"
	GCSExport    ExportType = "gcs"
)

func (et ExportType) IsValid() bool {
	switch et {
	case MemoryExport, SheetsExport, GCSExport:
		return true
	}
	return false
}
