// Package payment implements the payment collaborator. Latency chaos makes
// every call block for a long fixed delay; the orchestrator's deadline is
// what keeps callers from paying that price.
package payment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/chaos"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

const (
	ModeNormal  = "normal"
	ModeLatency = "latency"

	DefaultLatency = 20 * time.Second
)

func NewChaosSwitch(initial string) *chaos.Switch {
	return chaos.NewSwitch(initial, ModeNormal, ModeLatency)
}

type Handler struct {
	mode    *chaos.Switch
	latency time.Duration
	metrics *metrics.ServerMetrics
}

func NewHandler(mode *chaos.Switch, latency time.Duration, m *metrics.ServerMetrics) *Handler {
	if latency <= 0 {
		latency = DefaultLatency
	}
	return &Handler{mode: mode, latency: latency, metrics: m}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/api/chaos", h.handleChaos)
	mux.HandleFunc("/api/payment/process", h.handleProcess)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Payment Service is running", "mode": h.mode.Mode()})
}

func (h *Handler) handleChaos(w http.ResponseWriter, r *http.Request) {
	h.mode.Handler()(w, r)
	logging.Log(logging.Fields{Service: "payment-service", Step: "chaos", Status: "updated", ChaosMode: h.mode.Mode()})
}

type processRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "process", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, "process", start, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.Amount < 0 {
		h.respond(w, "process", start, http.StatusBadRequest, map[string]any{"error": "amount must be >= 0"})
		return
	}

	if h.mode.Is(ModeLatency) {
		// Hold the response for the injected delay, but give up as soon as
		// the caller's deadline cancels the request.
		select {
		case <-time.After(h.latency):
		case <-r.Context().Done():
			logging.Log(logging.Fields{Service: "payment-service", Step: "process", Status: "caller_gone", ChaosMode: ModeLatency})
			return
		}
	}

	txID := "tx_" + uuid.NewString()
	logging.Log(logging.Fields{Service: "payment-service", Step: "process", Status: "paid", Message: "transaction_id=" + txID, DurationMS: time.Since(start).Milliseconds()})
	h.respond(w, "process", start, http.StatusOK, map[string]any{"status": "paid", "transaction_id": txID})
}

func (h *Handler) respond(w http.ResponseWriter, handler string, start time.Time, code int, v any) {
	if h.metrics != nil {
		h.metrics.Requests.WithLabelValues(handler, strconv.Itoa(code)).Inc()
		h.metrics.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
	writeJSON(w, code, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
