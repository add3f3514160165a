package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dindin/internal/core"
	"dindin/internal/summary"
)

type fakeSource struct {
	mu      sync.Mutex
	expense float64
	calls   int
}

func (f *fakeSource) Summary(_ context.Context, _ string, p core.Period) (summary.PeriodSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return summary.PeriodSummary{PeriodLabel: p.Label(), Numbers: summary.Numbers{TotalExpense: f.expense}}, nil
}

func (f *fakeSource) set(v float64) {
	f.mu.Lock()
	f.expense = v
	f.mu.Unlock()
}

func dial(t *testing.T, hub *Hub, userID, month string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := core.ParsePeriod(month)
		hub.ServeWS(w, r, userID, p)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) Update {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestHubPushesOnChange(t *testing.T) {
	src := &fakeSource{expense: 10}
	hub := NewHub(src)
	defer hub.Close()

	conn := dial(t, hub, "u1", "2024-01")
	first := readUpdate(t, conn)
	if first.Type != "summary" || first.Month != "2024-01" || first.Summary.Numbers.TotalExpense != 10 {
		t.Fatalf("unexpected initial update %+v", first)
	}

	src.set(25)
	hub.LedgerChanged(context.Background(), "u1", []string{"2023-12", "2024-01"})
	if u := readUpdate(t, conn); u.Summary.Numbers.TotalExpense != 25 {
		t.Fatalf("expected recomputed summary, got %+v", u)
	}
}

func TestHubFiltersByUserAndMonth(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub(src)
	defer hub.Close()

	conn := dial(t, hub, "u1", "2024-01")
	readUpdate(t, conn)

	src.mu.Lock()
	before := src.calls
	src.mu.Unlock()

	hub.LedgerChanged(context.Background(), "u2", []string{"2024-01"})
	hub.LedgerChanged(context.Background(), "u1", []string{"2024-02"})

	src.mu.Lock()
	after := src.calls
	src.mu.Unlock()
	if after != before {
		t.Fatalf("unrelated changes should not recompute, calls %d -> %d", before, after)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.Count())
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub(&fakeSource{})
	conn := dial(t, hub, "u1", "2024-01")
	readUpdate(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 0 {
		t.Fatal("closed client should be unregistered")
	}
}
