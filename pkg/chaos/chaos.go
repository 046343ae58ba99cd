// Package chaos holds the per-collaborator failure-injection switch. Every
// service owns one Switch instance and reads it at the start of each request;
// the dashboard flips it through the /api/chaos control endpoint.
package chaos

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

type Switch struct {
	mu      sync.RWMutex
	mode    string
	allowed map[string]struct{}
}

// NewSwitch creates a switch starting in initial mode. The first listed mode
// is the "healthy" one; Set rejects anything outside the list.
func NewSwitch(initial string, modes ...string) *Switch {
	allowed := make(map[string]struct{}, len(modes))
	for _, m := range modes {
		allowed[m] = struct{}{}
	}
	if _, ok := allowed[initial]; !ok {
		panic(fmt.Sprintf("chaos: initial mode %q not in allowed set", initial))
	}
	return &Switch{mode: initial, allowed: allowed}
}

func (s *Switch) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Switch) Set(mode string) error {
	if _, ok := s.allowed[mode]; !ok {
		return fmt.Errorf("chaos: unknown mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

// Is reports whether the switch currently sits in mode.
func (s *Switch) Is(mode string) bool {
	return s.Mode() == mode
}

type command struct {
	Mode string `json:"mode"`
}

// Handler serves the control operation: POST {"mode": ...} flips the switch
// and the response reports the now-active mode.
func (s *Switch) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		var cmd command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		if err := s.Set(cmd.Mode); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "chaos_updated", "current_mode": s.Mode()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
