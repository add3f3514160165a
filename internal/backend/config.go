package backend

import (
	"fmt"

	"dindin/internal/config"
)

// FromAppConfig derives the storage and export configuration from the
// application config.
func FromAppConfig(appConfig *config.Config) (Config, ExportConfig, error) {
	if appConfig == nil {
		return Config{}, ExportConfig{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, ExportConfig{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	exportType := ExportType(appConfig.ExportBackend)
	if !exportType.IsValid() {
		return Config{}, ExportConfig{}, fmt.Errorf("invalid export type in config: %s", appConfig.ExportBackend)
	}

	return Config{
			Type:         backendType,
			SQLiteDBPath: appConfig.SQLiteDBPath,
			PostgresDSN:  appConfig.PostgresDSN,
		}, ExportConfig{
			Type:                  exportType,
			GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
			GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
			GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
			GCSBucket:             appConfig.GCSBucket,
			GCSPrefix:             appConfig.GCSPrefix,
		}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres backend")
		}
	case MemoryBackend:
		// Nothing to configure; data lives for the process lifetime.
	}
	return nil
}

func (c ExportConfig) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid export type: %s", c.Type)
	}
	if c.Type == SheetsExport {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets export")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			return fmt.Errorf("either GoogleCredentialsFile or GoogleCredentialsJSON must be provided for sheets export")
		}
	}
	if c.Type == GCSExport && c.GCSBucket == "" {
		return fmt.Errorf("bucket is required for gcs export")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
