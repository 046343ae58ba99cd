// Package notification implements the email collaborator. Down mode fails
// every send with a 500; the orchestrator absorbs that failure.
package notification

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/chaos"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

const (
	ModeUp   = "up"
	ModeDown = "down"
)

func NewChaosSwitch(initial string) *chaos.Switch {
	return chaos.NewSwitch(initial, ModeUp, ModeDown)
}

type Handler struct {
	mode    *chaos.Switch
	metrics *metrics.ServerMetrics
}

func NewHandler(mode *chaos.Switch, m *metrics.ServerMetrics) *Handler {
	return &Handler{mode: mode, metrics: m}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/api/chaos", h.handleChaos)
	mux.HandleFunc("/api/notification/send", h.handleSend)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "Notification Service", "state": h.mode.Mode()})
}

func (h *Handler) handleChaos(w http.ResponseWriter, r *http.Request) {
	h.mode.Handler()(w, r)
	logging.Log(logging.Fields{Service: "notification-service", Step: "chaos", Status: "updated", ChaosMode: h.mode.Mode()})
}

type sendRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "send", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.respond(w, "send", start, http.StatusBadRequest, map[string]any{"error": "email is required"})
		return
	}

	if h.mode.Is(ModeDown) {
		logging.Log(logging.Fields{Service: "notification-service", Step: "send", Status: "simulated_outage", ChaosMode: ModeDown})
		h.respond(w, "send", start, http.StatusInternalServerError, map[string]any{"detail": "Mail Server Down"})
		return
	}

	logging.Log(logging.Fields{Service: "notification-service", Step: "send", Status: "sent", Message: "to=" + req.Email})
	h.respond(w, "send", start, http.StatusOK, map[string]any{"status": "sent"})
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
