package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"dindin/internal/core"
	ports "dindin/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ports.Exporter = (*Exporter)(nil)

// Exporter writes one tab per user and month to a Google spreadsheet.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Credentials selects how the exporter authenticates. JSON wins over File;
// with neither set, application default credentials are used.
type Credentials struct {
	JSON string
	File string
}

// NewExporter creates a Sheets-backed exporter for spreadsheetID.
func NewExporter(ctx context.Context, spreadsheetID string, creds Credentials, opts ...goption.ClientOption) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	options := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case strings.TrimSpace(creds.JSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		options = append(options, goption.WithCredentialsJSON([]byte(creds.JSON)))
	case strings.TrimSpace(creds.File) != "":
		if _, err := os.Stat(creds.File); err != nil {
			return nil, fmt.Errorf("service account file: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials file", "path", creds.File)
		options = append(options, goption.WithCredentialsFile(creds.File))
	default:
		slog.InfoContext(ctx, "Using application default credentials")
	}
	if len(opts) == 0 {
		options = append(options, goption.WithHTTPClient(newHTTPClientWithPooling()))
	}
	options = append(options, opts...)

	svc, err := gsheet.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Exporter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// newHTTPClientWithPooling keeps connections to the Sheets API warm between
// exports.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ExportMonth clears the month's tab, creating it if needed, and writes the
// header and rows.
func (e *Exporter) ExportMonth(ctx context.Context, userID string, p core.Period, txs []core.Transaction) error {
	tab := ports.TabName(userID, p)
	if err := e.ensureTab(ctx, tab); err != nil {
		return err
	}

	rng := fmt.Sprintf("'%s'", tab)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	rows := ports.Rows(p, txs)
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = toInterfaces(r)
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Month exported", "tab", tab, "rows", len(rows)-1)
	return nil
}

func (e *Exporter) ensureTab(ctx context.Context, tab string) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created export tab", "tab", tab)
	return nil
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
