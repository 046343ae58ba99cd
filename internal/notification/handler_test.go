package notification

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestSend_UpAndDown(t *testing.T) {
	t.Parallel()

	mode := NewChaosSwitch(ModeUp)
	h := NewHandler(mode, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := post(mux, "/api/notification/send", `{"email":"user@test.com","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := post(mux, "/api/chaos", `{"mode":"down"}`); rec.Code != http.StatusOK {
		t.Fatalf("chaos toggle failed: %d", rec.Code)
	}
	rec = post(mux, "/api/notification/send", `{"email":"user@test.com","message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 while down, got %d", rec.Code)
	}

	if rec := post(mux, "/api/chaos", `{"mode":"up"}`); rec.Code != http.StatusOK {
		t.Fatalf("chaos toggle failed: %d", rec.Code)
	}
	rec = post(mux, "/api/notification/send", `{"email":"user@test.com","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", rec.Code)
	}
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	h := NewHandler(NewChaosSwitch(ModeUp), nil)
	mux := http.NewServeMux()
	h.Register(mux)

	if rec := post(mux, "/api/notification/send", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing email, got %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notification/send", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
