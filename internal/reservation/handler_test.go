package reservation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
	"github.com/AndresEncalada/tolerancia-fallos/internal/resilience"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/idempotency"
)

func newHandlerFixture(t *testing.T) (*fixture, *http.ServeMux) {
	t.Helper()
	f := newFixture(t, nil)
	h := NewHandler(f.orch, f.store, NewPersistenceSwitch(PersistenceNormal), nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return f, mux
}

func postReservation(mux *http.ServeMux, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateSuccess(t *testing.T) {
	t.Parallel()

	_, mux := newHandlerFixture(t)
	rec := postReservation(mux, `{"user_id":"u-1","item_id":"ticket_vip","amount":25.5}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.NotEmpty(t, outcome.OrderID)
	require.Equal(t, EmailSent, outcome.EmailStatus)
}

func TestHandler_CreateValidation(t *testing.T) {
	t.Parallel()

	_, mux := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing user", `{"item_id":"ticket_vip","amount":1}`},
		{"missing item", `{"user_id":"u-1","amount":1}`},
		{"negative amount", `{"user_id":"u-1","item_id":"ticket_vip","amount":-1}`},
	}
	for _, tt := range tests {
		rec := postReservation(mux, tt.body, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
	}
}

func TestHandler_CreateMethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, mux := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/reservations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_SoldOutMapsTo400WithStableKind(t *testing.T) {
	t.Parallel()

	f, mux := newHandlerFixture(t)
	f.inventory.fn = func() (InventoryResult, error) { return InventoryResult{}, apperr.ErrSoldOut }

	rec := postReservation(mux, `{"user_id":"u-1","item_id":"ticket_vip","amount":1}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "sold_out", resp["error"])
}

func TestHandler_PendingOutcomeIs200(t *testing.T) {
	t.Parallel()

	f, mux := newHandlerFixture(t)
	f.inventory.fn = func() (InventoryResult, error) {
		return InventoryResult{}, apperr.ErrInventoryDown
	}
	for i := 0; i < 3; i++ {
		rec := postReservation(mux, `{"user_id":"u-1","item_id":"ticket_vip","amount":1}`, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	rec := postReservation(mux, `{"user_id":"u-1","item_id":"ticket_vip","amount":1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var outcome Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	require.Equal(t, OutcomePending, outcome.Status)
}

func TestHandler_IdempotencyKeyReplaysOutcome(t *testing.T) {
	t.Parallel()

	f, mux := newHandlerFixture(t)
	body := `{"user_id":"u-1","item_id":"ticket_vip","amount":1}`
	headers := map[string]string{idempotency.Header: "key-1"}

	first := postReservation(mux, body, headers)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, 1, f.inventory.calls)

	second := postReservation(mux, body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, f.inventory.calls, "replayed request must not re-run the workflow")

	// A different key runs a fresh workflow.
	third := postReservation(mux, body, map[string]string{idempotency.Header: "key-2"})
	require.Equal(t, http.StatusOK, third.Code)
	require.Equal(t, 2, f.inventory.calls)
}

func TestHandler_DBChaosToggle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	dbChaos := NewPersistenceSwitch(PersistenceNormal)
	h := NewHandler(f.orch, f.store, dbChaos, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chaos/db", strings.NewReader(`{"enable":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, dbChaos.Is(PersistenceFlaky))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chaos/db", strings.NewReader(`{"enable":false}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, dbChaos.Is(PersistenceNormal))
}

func TestHandler_DebugDB(t *testing.T) {
	t.Parallel()

	f, mux := newHandlerFixture(t)
	_, err := f.orch.Create(context.Background(), request())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/debug/db", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalRecords int           `json:"total_records"`
		Data         []Reservation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalRecords)
	require.Len(t, resp.Data, 1)
	require.Equal(t, StatusConfirmed, resp.Data[0].Status)
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	_, mux := newHandlerFixture(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Reservation Core Active", resp["status"])
	require.Equal(t, resilience.StateClosed.String(), resp["breaker"])
}
