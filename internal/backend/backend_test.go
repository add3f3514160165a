package backend

import (
	"context"
	"path/filepath"
	"testing"

	"dindin/internal/config"
	"dindin/internal/sheets/memory"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportConfigValidate(t *testing.T) {
	if err := (ExportConfig{Type: MemoryExport}).Validate(); err != nil {
		t.Fatal(err)
	}
	if err := (ExportConfig{Type: SheetsExport, GoogleSpreadsheetID: "id"}).Validate(); err == nil {
		t.Fatal("sheets export without credentials should fail")
	}
	if err := (ExportConfig{Type: GCSExport}).Validate(); err == nil {
		t.Fatal("gcs export without bucket should fail")
	}
	if err := (ExportConfig{Type: GCSExport, GCSBucket: "ledger-archive"}).Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, _, err := FromAppConfig(nil); err == nil {
		t.Fatal("nil config should fail")
	}
	cfg := config.Load()
	cfg.DataBackend = "sqlite"
	cfg.SQLiteDBPath = "/tmp/x.db"
	store, export, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if store.Type != SQLiteBackend || store.SQLiteDBPath != "/tmp/x.db" || export.Type != MemoryExport {
		t.Fatalf("unexpected %+v %+v", store, export)
	}
	cfg.DataBackend = "bogus"
	if _, _, err := FromAppConfig(cfg); err == nil {
		t.Fatal("invalid backend should fail")
	}
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "dindin.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateStore(ctx, cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer res.Cleanup()
			if err := res.Store.Set(ctx, "k", "v"); err != nil {
				t.Fatal(err)
			}
			if v, ok, err := res.Store.Get(ctx, "k"); err != nil || !ok || v != "v" {
				t.Fatalf("unexpected %q %v %v", v, ok, err)
			}
			if err := res.Store.Ping(ctx); err != nil {
				t.Fatal(err)
			}
		})
	}

	if _, err := f.CreateStore(ctx, Config{Type: "bogus"}); err == nil {
		t.Fatal("invalid type should fail")
	}
}

func TestCreateExporter(t *testing.T) {
	res, err := NewFactory(nil).CreateExporter(context.Background(), ExportConfig{Type: MemoryExport})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Exporter.(*memory.Store); !ok {
		t.Fatalf("unexpected exporter %T", res.Exporter)
	}
}
