// Package gcs archives monthly exports as CSV objects in a Cloud Storage
// bucket.
package gcs

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/sheets"
)

const uploadTimeout = 2 * time.Minute

// objectOpener returns a writer for one object; closing it finalizes the
// upload.
type objectOpener func(ctx context.Context, object string) io.WriteCloser

// Exporter writes <prefix>/<user>/<YYYY-MM>.csv per exported month.
type Exporter struct {
	bucket string
	prefix string
	open   objectOpener
	client *storage.Client
}

// NewExporter connects with Application Default Credentials unless opts
// say otherwise.
func NewExporter(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	bkt := client.Bucket(bucket)
	open := func(ctx context.Context, object string) io.WriteCloser {
		w := bkt.Object(object).NewWriter(ctx)
		w.ContentType = "text/csv; charset=utf-8"
		return w
	}
	return &Exporter{bucket: bucket, prefix: prefix, open: open, client: client}, nil
}

// ObjectName is the object holding userID's month p.
func (e *Exporter) ObjectName(userID string, p core.Period) string {
	user := userID
	if user == "" {
		user = "_"
	}
	return path.Join(e.prefix, user, p.String()+".csv")
}

// ExportMonth overwrites the month's object.
func (e *Exporter) ExportMonth(ctx context.Context, userID string, p core.Period, txs []core.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := e.ObjectName(userID, p)
	w := e.open(ctx, object)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(sheets.Rows(p, txs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of gs://%s/%s: %w", e.bucket, object, err)
	}
	slog.InfoContext(ctx, "Exported month to Cloud Storage", applog.FieldComponent, applog.ComponentSheets, applog.FieldOperation, applog.OpExport,
		"object", object, applog.FieldMonth, p.String())
	return nil
}

// Close releases the storage client.
func (e *Exporter) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
