package reservation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
	"github.com/AndresEncalada/tolerancia-fallos/internal/resilience"
)

type stubInventory struct {
	calls int
	fn    func() (InventoryResult, error)
}

func (s *stubInventory) Reserve(ctx context.Context, itemID string) (InventoryResult, error) {
	s.calls++
	return s.fn()
}

type stubPayment struct {
	calls int
	fn    func(ctx context.Context) (string, error)
}

func (s *stubPayment) Process(ctx context.Context, amount float64) (string, error) {
	s.calls++
	return s.fn(ctx)
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Send(ctx context.Context, email, message string) error {
	s.calls++
	return s.err
}

// failingStore fails the first N inserts with the transient kind.
type failingStore struct {
	inner    Store
	failures int
	attempts int
}

func (s *failingStore) Insert(ctx context.Context, res Reservation) error {
	s.attempts++
	if s.attempts <= s.failures {
		return fmt.Errorf("attempt %d: %w", s.attempts, apperr.ErrStorageUnavailable)
	}
	return s.inner.Insert(ctx, res)
}

func (s *failingStore) List(ctx context.Context) ([]Reservation, error) {
	return s.inner.List(ctx)
}

type fixture struct {
	inventory *stubInventory
	payment   *stubPayment
	notifier  *stubNotifier
	store     Store
	orch      *Orchestrator
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	f := &fixture{
		inventory: &stubInventory{fn: func() (InventoryResult, error) {
			return InventoryResult{ItemID: "ticket_vip", RemainingStock: 99}, nil
		}},
		payment: &stubPayment{fn: func(ctx context.Context) (string, error) {
			return "tx-1", nil
		}},
		notifier: &stubNotifier{},
	}
	if store == nil {
		store = NewMemoryStore()
	}
	f.store = store

	breaker := resilience.NewBreaker(3, 10*time.Second,
		resilience.WithFailureClassifier(CountsAsBreakerFailure))
	retry := resilience.NewRetryPolicy(3, time.Second,
		resilience.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))

	seq := 0
	f.orch = NewOrchestrator(f.inventory, f.payment, f.notifier, store, breaker, retry,
		Config{PaymentTimeout: 50 * time.Millisecond},
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("order-%d", seq) }),
	)
	return f
}

func request() Request {
	return Request{UserID: "u-1", ItemID: "ticket_vip", Amount: 25.50}
}

func TestCreate_HappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	outcome, err := f.orch.Create(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.Equal(t, "order-1", outcome.OrderID)
	require.Equal(t, EmailSent, outcome.EmailStatus)

	rows, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, Reservation{OrderID: "order-1", UserID: "u-1", ItemID: "ticket_vip", Amount: 25.50, Status: StatusConfirmed}, rows[0])
}

func TestCreate_SoldOutIsTerminalBusinessRejection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.inventory.fn = func() (InventoryResult, error) { return InventoryResult{}, apperr.ErrSoldOut }

	_, err := f.orch.Create(context.Background(), request())
	require.ErrorIs(t, err, apperr.ErrSoldOut)
	require.Equal(t, 0, f.payment.calls, "payment must not run after a rejection")
	require.Equal(t, 0, f.notifier.calls)
}

func TestCreate_SoldOutNeverTripsBreaker(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.inventory.fn = func() (InventoryResult, error) { return InventoryResult{}, apperr.ErrSoldOut }

	for i := 0; i < 10; i++ {
		_, err := f.orch.Create(context.Background(), request())
		require.ErrorIs(t, err, apperr.ErrSoldOut, "repeated sold-out must stay a business outcome")
	}
	require.Equal(t, resilience.StateClosed, f.orch.BreakerState())
	require.Equal(t, 10, f.inventory.calls)
}

func TestCreate_ItemNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.inventory.fn = func() (InventoryResult, error) { return InventoryResult{}, apperr.ErrItemNotFound }

	_, err := f.orch.Create(context.Background(), request())
	require.ErrorIs(t, err, apperr.ErrItemNotFound)
	require.Equal(t, resilience.StateClosed, f.orch.BreakerState())
}

func TestCreate_InventoryCrashThenBreakerOpens(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.inventory.fn = func() (InventoryResult, error) {
		return InventoryResult{}, fmt.Errorf("%w: status 500", apperr.ErrInventoryDown)
	}

	// Three consecutive crashes reach the threshold and fail hard.
	for i := 0; i < 3; i++ {
		_, err := f.orch.Create(context.Background(), request())
		require.ErrorIs(t, err, apperr.ErrInventoryDown)
	}
	require.Equal(t, resilience.StateOpen, f.orch.BreakerState())
	require.Equal(t, 3, f.inventory.calls)

	// The fourth request is short-circuited into the degraded outcome with
	// no dependency call.
	outcome, err := f.orch.Create(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, OutcomePending, outcome.Status)
	require.NotEmpty(t, outcome.OrderID)
	require.NotEmpty(t, outcome.Message)
	require.Equal(t, 3, f.inventory.calls, "short-circuited request must not reach inventory")
	require.Equal(t, 0, f.payment.calls)

	rows, _ := f.store.List(context.Background())
	require.Empty(t, rows, "pending outcome must not persist anything")
}

func TestCreate_PaymentTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.payment.fn = func(ctx context.Context) (string, error) {
		// Emulate the client: the injected 20s latency loses to the
		// orchestrator's deadline.
		<-ctx.Done()
		return "", fmt.Errorf("%w: %v", apperr.ErrPaymentTimeout, ctx.Err())
	}

	start := time.Now()
	_, err := f.orch.Create(context.Background(), request())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, apperr.ErrPaymentTimeout)
	require.Less(t, elapsed, time.Second, "must return close to the deadline, not the full latency")

	rows, _ := f.store.List(context.Background())
	require.Empty(t, rows, "no persistence attempt after a payment timeout")
	require.Equal(t, 0, f.notifier.calls)
}

func TestCreate_PaymentGatewayFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.payment.fn = func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("%w: status 500", apperr.ErrPaymentGateway)
	}

	_, err := f.orch.Create(context.Background(), request())
	require.ErrorIs(t, err, apperr.ErrPaymentGateway)
	require.NotErrorIs(t, err, apperr.ErrPaymentTimeout, "gateway failure must stay distinct from timeout")
}

func TestCreate_PersistenceRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore()
	store := &failingStore{inner: mem, failures: 2}
	f := newFixture(t, store)

	outcome, err := f.orch.Create(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.Equal(t, 3, store.attempts)

	rows, _ := mem.List(context.Background())
	require.Len(t, rows, 1, "exactly one durable record for the order id")
}

func TestCreate_PersistenceExhausted(t *testing.T) {
	t.Parallel()

	store := &failingStore{inner: NewMemoryStore(), failures: 100}
	f := newFixture(t, store)

	_, err := f.orch.Create(context.Background(), request())
	require.ErrorIs(t, err, apperr.ErrPersistenceExhausted)
	require.Equal(t, 3, store.attempts, "no execution performs more than three write attempts")
	require.Equal(t, 0, f.notifier.calls)
}

func TestCreate_NotificationFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.notifier.err = fmt.Errorf("%w: status 500", apperr.ErrNotificationDown)

	outcome, err := f.orch.Create(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome.Status, "notification failure must never change the top-level status")
	require.Equal(t, EmailFailed, outcome.EmailStatus)

	rows, _ := f.store.List(context.Background())
	require.Len(t, rows, 1)
}

func TestCreate_BreakerHalfOpenProbeRecovers(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	inventory := &stubInventory{fn: func() (InventoryResult, error) {
		return InventoryResult{}, fmt.Errorf("%w: unreachable", apperr.ErrInventoryDown)
	}}
	payment := &stubPayment{fn: func(ctx context.Context) (string, error) { return "tx-1", nil }}
	notifier := &stubNotifier{}
	store := NewMemoryStore()

	breaker := resilience.NewBreaker(3, 10*time.Second,
		resilience.WithClock(now),
		resilience.WithFailureClassifier(CountsAsBreakerFailure))
	retry := resilience.NewRetryPolicy(3, time.Second,
		resilience.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	orch := NewOrchestrator(inventory, payment, notifier, store, breaker, retry, Config{})

	for i := 0; i < 3; i++ {
		_, err := orch.Create(context.Background(), request())
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, orch.BreakerState())

	// Dependency recovers; once the reset timeout elapses the next request
	// is the probe and closes the breaker.
	inventory.fn = func() (InventoryResult, error) {
		return InventoryResult{ItemID: "ticket_vip", RemainingStock: 5}, nil
	}
	clock = clock.Add(11 * time.Second)

	outcome, err := orch.Create(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.Equal(t, resilience.StateClosed, orch.BreakerState())
}

func TestCountsAsBreakerFailure(t *testing.T) {
	t.Parallel()

	require.False(t, CountsAsBreakerFailure(nil))
	require.False(t, CountsAsBreakerFailure(apperr.ErrSoldOut))
	require.False(t, CountsAsBreakerFailure(fmt.Errorf("wrapped: %w", apperr.ErrItemNotFound)))
	require.True(t, CountsAsBreakerFailure(apperr.ErrInventoryDown))
	require.True(t, CountsAsBreakerFailure(errors.New("anything else")))
}
