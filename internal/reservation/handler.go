package reservation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/chaos"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/idempotency"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

// Handler is the HTTP surface of the reservation core: the workflow
// endpoint, the persistence chaos control, and the debug listing.
type Handler struct {
	orch    *Orchestrator
	store   Store
	dbChaos *chaos.Switch
	metrics *metrics.ServerMetrics

	mu     sync.Mutex
	replay map[string]cachedResponse
}

type cachedResponse struct {
	code int
	body []byte
}

func NewHandler(orch *Orchestrator, store Store, dbChaos *chaos.Switch, m *metrics.ServerMetrics) *Handler {
	return &Handler{
		orch:    orch,
		store:   store,
		dbChaos: dbChaos,
		metrics: m,
		replay:  make(map[string]cachedResponse),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/api/reservations", h.handleCreate)
	mux.HandleFunc("/api/chaos/db", h.handleDBChaos)
	mux.HandleFunc("/api/debug/db", h.handleDebugDB)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "Reservation Core Active",
		"breaker":    h.orch.BreakerState().String(),
		"flaky_mode": h.dbChaos.Is(PersistenceFlaky),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "reservations", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, "reservations", start, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.ItemID == "" {
		h.respond(w, "reservations", start, http.StatusBadRequest, map[string]any{"error": "user_id and item_id are required"})
		return
	}
	if req.Amount < 0 {
		h.respond(w, "reservations", start, http.StatusBadRequest, map[string]any{"error": "amount must be >= 0"})
		return
	}

	// A repeated Idempotency-Key replays the recorded outcome instead of
	// running the workflow (and charging) again.
	idemKey := idempotency.Key(r)
	if idemKey != "" {
		if cached, ok := h.cachedReplay(idemKey); ok {
			h.observe("reservations", start, cached.code)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.code)
			_, _ = w.Write(cached.body)
			return
		}
	}

	outcome, err := h.orch.Create(r.Context(), req)
	if err != nil {
		code := apperr.HTTPStatus(err)
		body := map[string]any{"error": apperr.Kind(err), "message": userMessage(err)}
		if idemKey != "" {
			h.recordReplay(idemKey, code, body)
		}
		h.respond(w, "reservations", start, code, body)
		return
	}

	if idemKey != "" {
		h.recordReplay(idemKey, http.StatusOK, outcome)
	}
	h.respond(w, "reservations", start, http.StatusOK, outcome)
}

type dbChaosCommand struct {
	Enable bool `json:"enable"`
}

func (h *Handler) handleDBChaos(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		h.respond(w, "chaos_db", start, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var cmd dbChaosCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.respond(w, "chaos_db", start, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	mode := PersistenceNormal
	if cmd.Enable {
		mode = PersistenceFlaky
	}
	_ = h.dbChaos.Set(mode)
	logging.Log(logging.Fields{Service: service, Step: "chaos_db", Status: "updated", ChaosMode: mode})
	h.respond(w, "chaos_db", start, http.StatusOK, map[string]any{"status": "db_chaos_updated", "flaky_mode": cmd.Enable})
}

func (h *Handler) handleDebugDB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows, err := h.store.List(r.Context())
	if err != nil {
		h.respond(w, "debug_db", start, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	h.respond(w, "debug_db", start, http.StatusOK, map[string]any{"total_records": len(rows), "data": rows})
}

func (h *Handler) cachedReplay(key string) (cachedResponse, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cached, ok := h.replay[key]
	return cached, ok
}

func (h *Handler) recordReplay(key string, code int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.replay[key] = cachedResponse{code: code, body: data}
	h.mu.Unlock()
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

func userMessage(err error) string {
	switch apperr.Kind(err) {
	case "sold_out":
		return "sorry, tickets are sold out"
	case "item_not_found":
		return "unknown item"
	case "inventory_error":
		return "technical error in inventory"
	case "payment_timeout":
		return "the payment system is not responding, try again later"
	case "payment_gateway":
		return "payment gateway failure"
	case "persistence_exhausted":
		return "could not save the reservation after several attempts"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
