package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newTestMux(t *testing.T) (*Service, *http.ServeMux) {
	t.Helper()
	svc := NewService("")
	h := NewHandler(svc, NewChaosSwitch(ModeNormal), nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return svc, mux
}

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestReserve_DecrementsOnce(t *testing.T) {
	t.Parallel()

	svc, mux := newTestMux(t)
	rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_vip"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status         string `json:"status"`
		RemainingStock int    `json:"remaining_stock"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "reserved" || resp.RemainingStock != 99 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got := svc.Stock()["ticket_vip"]; got != 99 {
		t.Errorf("stock not decremented, got %d", got)
	}
}

func TestReserve_SoldOutAtZero(t *testing.T) {
	t.Parallel()

	svc, mux := newTestMux(t)
	svc.Add("ticket_last", 1)

	// Stock 1: first request succeeds, second is sold out.
	if rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_last"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_last"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 sold out, got %d", rec.Code)
	}
	// Sold out is stable: repeating never turns into a 5xx.
	for i := 0; i < 5; i++ {
		if rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_last"}`); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	}
}

func TestReserve_UnknownItem(t *testing.T) {
	t.Parallel()

	_, mux := newTestMux(t)
	rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_moon"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReserve_CrashChaos(t *testing.T) {
	t.Parallel()

	svc := NewService("")
	mode := NewChaosSwitch(ModeNormal)
	h := NewHandler(svc, mode, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	if rec := post(mux, "/api/chaos", `{"mode":"crash"}`); rec.Code != http.StatusOK {
		t.Fatalf("chaos toggle failed: %d", rec.Code)
	}
	rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_vip"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 in crash mode, got %d", rec.Code)
	}
	if got := svc.Stock()["ticket_vip"]; got != 100 {
		t.Errorf("crash mode must not touch stock, got %d", got)
	}

	// Back to normal resumes service.
	if rec := post(mux, "/api/chaos", `{"mode":"normal"}`); rec.Code != http.StatusOK {
		t.Fatalf("chaos toggle failed: %d", rec.Code)
	}
	if rec := post(mux, "/api/inventory/reserve", `{"item_id":"ticket_vip"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", rec.Code)
	}
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	t.Parallel()

	svc := NewService("")
	svc.Add("ticket_hot", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve("ticket_hot"); err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if reserved != 10 {
		t.Errorf("expected exactly 10 successful reservations, got %d", reserved)
	}
	if got := svc.Stock()["ticket_hot"]; got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestResetAndAdd(t *testing.T) {
	t.Parallel()

	svc, mux := newTestMux(t)
	for i := 0; i < 5; i++ {
		_, _ = svc.Reserve("ticket_general")
	}

	rec := post(mux, "/api/inventory/reset", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := svc.Stock()["ticket_general"]; got != 500 {
		t.Errorf("reset must restore defaults, got %d", got)
	}

	rec = post(mux, "/api/inventory/add", `{"item_id":"ticket_new","quantity":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := svc.Stock()["ticket_new"]; got != 7 {
		t.Errorf("expected 7, got %d", got)
	}

	if rec := post(mux, "/api/inventory/add", `{"item_id":"ticket_new","quantity":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-positive quantity, got %d", rec.Code)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	file := t.TempDir() + "/inventory.json"
	svc := NewService(file)
	_, _ = svc.Reserve("ticket_vip")
	_, _ = svc.Reserve("ticket_vip")

	reloaded := NewService(file)
	if got := reloaded.Stock()["ticket_vip"]; got != 98 {
		t.Errorf("expected snapshot to survive restart, got %d", got)
	}
}
