package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/chaos"
)

// Store is the durable reservation record. Insert must be idempotent-safe:
// the retry policy re-runs the write with the same order id, and a repeated
// id must not create a duplicate record.
type Store interface {
	Insert(ctx context.Context, res Reservation) error
	List(ctx context.Context) ([]Reservation, error)
}

// MemoryStore keeps reservations in process memory. Used when DATABASE_URL
// is not configured and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Reservation)}
}

func (s *MemoryStore) Insert(ctx context.Context, res Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[res.OrderID]; exists {
		return nil
	}
	s.rows[res.OrderID] = res
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reservation, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// FlakyStore decorates a Store with the persistence chaos mode: while the
// switch reads "flaky", each write attempt independently fails with 50%
// probability, surfacing the transient error kind the retry predicate
// matches.
type FlakyStore struct {
	inner Store
	mode  *chaos.Switch

	mu  sync.Mutex
	rng *rand.Rand
}

const (
	PersistenceNormal = "normal"
	PersistenceFlaky  = "flaky"
)

// NewPersistenceSwitch builds the chaos switch owned by the reservation core
// itself; /api/chaos/db flips it.
func NewPersistenceSwitch(initial string) *chaos.Switch {
	return chaos.NewSwitch(initial, PersistenceNormal, PersistenceFlaky)
}

func NewFlakyStore(inner Store, mode *chaos.Switch, rng *rand.Rand) *FlakyStore {
	return &FlakyStore{inner: inner, mode: mode, rng: rng}
}

func (s *FlakyStore) Insert(ctx context.Context, res Reservation) error {
	if s.mode.Is(PersistenceFlaky) && s.coinFlip() {
		return fmt.Errorf("simulated connection lost: %w", apperr.ErrStorageUnavailable)
	}
	return s.inner.Insert(ctx, res)
}

func (s *FlakyStore) List(ctx context.Context) ([]Reservation, error) {
	return s.inner.List(ctx)
}

func (s *FlakyStore) coinFlip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(2) == 0
}
