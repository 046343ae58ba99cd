// Package inventory implements the stock collaborator. Decrements are
// serialized behind one mutex so concurrent reservations can never oversell
// an item.
package inventory

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
)

var (
	ErrNoStock     = errors.New("sold out")
	ErrUnknownItem = errors.New("item does not exist")
)

// DefaultStock seeds a fresh inventory.
func DefaultStock() map[string]int {
	return map[string]int{
		"ticket_rock_concert": 100,
		"ticket_vip":          100,
		"ticket_general":      500,
	}
}

// Service holds the stock table, optionally snapshotted to a JSON file so
// counts survive restarts.
type Service struct {
	mu    sync.Mutex
	stock map[string]int
	file  string
}

// NewService loads the snapshot file when it exists, otherwise starts from
// the default stock. An empty file path keeps everything in memory.
func NewService(file string) *Service {
	s := &Service{stock: DefaultStock(), file: file}
	if file == "" {
		return s
	}
	data, err := os.ReadFile(file)
	if err != nil {
		s.snapshotLocked()
		return s
	}
	var loaded map[string]int
	if err := json.Unmarshal(data, &loaded); err != nil || len(loaded) == 0 {
		return s
	}
	s.stock = loaded
	return s
}

// Reserve decrements one unit of stock and returns the remaining count.
func (s *Service) Reserve(itemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, ok := s.stock[itemID]
	if !ok {
		return 0, ErrUnknownItem
	}
	if remaining <= 0 {
		return 0, ErrNoStock
	}
	s.stock[itemID] = remaining - 1
	s.snapshotLocked()
	return remaining - 1, nil
}

// Add tops up stock, creating the item if needed.
func (s *Service) Add(itemID string, quantity int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[itemID] += quantity
	s.snapshotLocked()
	return s.stock[itemID]
}

// Reset restores the default stock.
func (s *Service) Reset() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock = DefaultStock()
	s.snapshotLocked()
	return s.snapshotCopyLocked()
}

// Stock returns a copy of the current counts.
func (s *Service) Stock() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotCopyLocked()
}

func (s *Service) snapshotCopyLocked() map[string]int {
	out := make(map[string]int, len(s.stock))
	for k, v := range s.stock {
		out[k] = v
	}
	return out
}

// snapshotLocked persists the table; best-effort, a failed write only logs.
func (s *Service) snapshotLocked() {
	if s.file == "" {
		return
	}
	data, err := json.MarshalIndent(s.stock, "", "    ")
	if err == nil {
		err = os.WriteFile(s.file, data, 0o644)
	}
	if err != nil {
		logging.Log(logging.Fields{Service: "inventory-service", Step: "snapshot", Status: "error", Message: err.Error()})
	}
}
