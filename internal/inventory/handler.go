package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/chaos"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

const (
	ModeNormal = "normal"
	ModeCrash  = "crash"
)

// NewChaosSwitch builds the inventory chaos switch: crash mode fails every
// reservation with a fatal error.
func NewChaosSwitch(initial string) *chaos.Switch {
	return chaos.NewSwitch(initial, ModeNormal, ModeCrash)
}

type Handler struct {
	svc     *Service
	mode    *chaos.Switch
	metrics *metrics.ServerMetrics
}

func NewHandler(svc *Service, mode *chaos.Switch, m *metrics.ServerMetrics) *Handler {
	return &Handler{svc: svc, mode: mode, metrics: m}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/api/chaos", h.handleChaos)
	mux.HandleFunc("/api/inventory/reserve", h.handleReserve)
	mux.HandleFunc("/api/inventory/reset", h.handleReset)
	mux.HandleFunc("/api/inventory/add", h.handleAdd)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "Inventory Service is running",
		"stock":      h.svc.Stock(),
		"chaos_mode": h.mode.Mode(),
	})
}

func (h *Handler) handleChaos(w http.ResponseWriter, r *http.Request) {
	h.mode.Handler()(w, r)
	logging.Log(logging.Fields{Service: "inventory-service", Step: "chaos", Status: "updated", ChaosMode: h.mode.Mode()})
}

type reserveRequest struct {
	ItemID string `json:"item_id"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "reserve", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	// Chaos check comes first: crash mode fails every call before any
	// business logic runs.
	if h.mode.Is(ModeCrash) {
		h.respond(w, "reserve", start, http.StatusInternalServerError, map[string]any{"detail": "CRITICAL_FAILURE: Inventory System Crash"})
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		h.respond(w, "reserve", start, http.StatusBadRequest, map[string]any{"error": "item_id is required"})
		return
	}

	remaining, err := h.svc.Reserve(req.ItemID)
	switch {
	case errors.Is(err, ErrUnknownItem):
		h.respond(w, "reserve", start, http.StatusNotFound, map[string]any{"detail": "item does not exist"})
		return
	case errors.Is(err, ErrNoStock):
		h.respond(w, "reserve", start, http.StatusBadRequest, map[string]any{"detail": "Sold Out"})
		return
	}

	logging.Log(logging.Fields{Service: "inventory-service", ItemID: req.ItemID, Step: "reserve", Status: "reserved", Message: "remaining=" + strconv.Itoa(remaining)})
	h.respond(w, "reserve", start, http.StatusOK, map[string]any{
		"status":          "reserved",
		"item_id":         req.ItemID,
		"remaining_stock": remaining,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "reset", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	stock := h.svc.Reset()
	logging.Log(logging.Fields{Service: "inventory-service", Step: "reset", Status: "done"})
	h.respond(w, "reset", start, http.StatusOK, map[string]any{"status": "Inventory Reset", "stock": stock})
}

type addRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "add", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		h.respond(w, "add", start, http.StatusBadRequest, map[string]any{"error": "item_id is required"})
		return
	}
	if req.Quantity <= 0 {
		h.respond(w, "add", start, http.StatusBadRequest, map[string]any{"error": "quantity must be > 0"})
		return
	}
	newQty := h.svc.Add(req.ItemID, req.Quantity)
	h.respond(w, "add", start, http.StatusOK, map[string]any{"status": "Stock Updated", "new_quantity": newQty})
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
