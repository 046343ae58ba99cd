// Package gateway is the front door of the lab: it forwards ticket purchases
// to the reservation core and bridges chaos-control commands to each
// collaborator.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/idempotency"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

type Config struct {
	ReservationBaseURL  string
	InventoryBaseURL    string
	PaymentBaseURL      string
	NotificationBaseURL string
}

type Handler struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.ServerMetrics
}

func NewHandler(cfg Config, client *http.Client, m *metrics.ServerMetrics) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.ReservationBaseURL = strings.TrimRight(cfg.ReservationBaseURL, "/")
	cfg.InventoryBaseURL = strings.TrimRight(cfg.InventoryBaseURL, "/")
	cfg.PaymentBaseURL = strings.TrimRight(cfg.PaymentBaseURL, "/")
	cfg.NotificationBaseURL = strings.TrimRight(cfg.NotificationBaseURL, "/")
	return &Handler{cfg: cfg, http: client, metrics: m}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/buy-ticket", h.handleBuyTicket)
	mux.HandleFunc("/debug/db", h.handleDebugDB)
	mux.HandleFunc("/control/inventory-chaos", h.forwardTo("inventory_chaos", func(c Config) string { return c.InventoryBaseURL + "/api/chaos" }))
	mux.HandleFunc("/control/payment-chaos", h.forwardTo("payment_chaos", func(c Config) string { return c.PaymentBaseURL + "/api/chaos" }))
	mux.HandleFunc("/control/notification-chaos", h.forwardTo("notification_chaos", func(c Config) string { return c.NotificationBaseURL + "/api/chaos" }))
	mux.HandleFunc("/control/db-chaos", h.forwardTo("db_chaos", func(c Config) string { return c.ReservationBaseURL + "/api/chaos/db" }))
	mux.HandleFunc("/control/inventory-reset", h.forwardTo("inventory_reset", func(c Config) string { return c.InventoryBaseURL + "/api/inventory/reset" }))
	mux.HandleFunc("/control/reset-all", h.handleResetAll)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "Gateway Online"})
}

// handleBuyTicket forwards the purchase to the reservation core and passes
// the outcome through unchanged, Idempotency-Key included.
func (h *Handler) handleBuyTicket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "buy_ticket", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respond(w, "buy_ticket", start, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.cfg.ReservationBaseURL+"/api/reservations", bytes.NewReader(body))
	if err != nil {
		h.respond(w, "buy_ticket", start, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if key := idempotency.Key(r); key != "" {
		req.Header.Set(idempotency.Header, key)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		logging.Log(logging.Fields{Service: "gateway", Step: "buy_ticket", Status: "core_down", Message: err.Error()})
		h.respond(w, "buy_ticket", start, http.StatusServiceUnavailable, map[string]any{"detail": "Service Unavailable: Core system is down"})
		return
	}
	defer resp.Body.Close()
	h.copyResponse(w, "buy_ticket", start, resp)
}

func (h *Handler) handleDebugDB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.cfg.ReservationBaseURL+"/api/debug/db", nil)
	if err != nil {
		h.respond(w, "debug_db", start, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	resp, err := h.http.Do(req)
	if err != nil {
		h.respond(w, "debug_db", start, http.StatusServiceUnavailable, map[string]any{"detail": "Service Unavailable: Core system is down"})
		return
	}
	defer resp.Body.Close()
	h.copyResponse(w, "debug_db", start, resp)
}

// forwardTo builds a chaos-bridge handler that relays the POST body to one
// collaborator control endpoint.
func (h *Handler) forwardTo(name string, target func(Config) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Method != http.MethodPost {
			h.respond(w, name, start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.respond(w, name, start, http.StatusBadRequest, map[string]any{"error": "invalid body"})
			return
		}
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target(h.cfg), bytes.NewReader(body))
		if err != nil {
			h.respond(w, name, start, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.http.Do(req)
		if err != nil {
			h.respond(w, name, start, http.StatusServiceUnavailable, map[string]any{"error": "could not contact collaborator: " + err.Error()})
			return
		}
		defer resp.Body.Close()
		h.copyResponse(w, name, start, resp)
	}
}

// handleResetAll restores every collaborator to its healthy mode and resets
// stock, contacting all of them in parallel.
func (h *Handler) handleResetAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "reset_all", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	targets := []struct {
		url  string
		body string
	}{
		{h.cfg.InventoryBaseURL + "/api/chaos", `{"mode":"normal"}`},
		{h.cfg.PaymentBaseURL + "/api/chaos", `{"mode":"normal"}`},
		{h.cfg.NotificationBaseURL + "/api/chaos", `{"mode":"up"}`},
		{h.cfg.ReservationBaseURL + "/api/chaos/db", `{"enable":false}`},
		{h.cfg.InventoryBaseURL + "/api/inventory/reset", `{}`},
	}
	for _, t := range targets {
		t := t
		g.Go(func() error { return h.post(ctx, t.url, t.body) })
	}
	if err := g.Wait(); err != nil {
		h.respond(w, "reset_all", start, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	logging.Log(logging.Fields{Service: "gateway", Step: "reset_all", Status: "done"})
	h.respond(w, "reset_all", start, http.StatusOK, map[string]any{"status": "all_chaos_reset"})
}

func (h *Handler) post(ctx context.Context, url, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (h *Handler) copyResponse(w http.ResponseWriter, handler string, start time.Time, resp *http.Response) {
	h.observe(handler, start, resp.StatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (h *Handler) respond(w http.ResponseWriter, handler string, start time.Time, code int, v any) {
	h.observe(handler, start, code)
	writeJSON(w, code, v)
}

func (h *Handler) observe(handler string, start time.Time, code int) {
	if h.metrics == nil {
		return
	}
	h.metrics.Requests.WithLabelValues(handler, strconv.Itoa(code)).Inc()
	h.metrics.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
