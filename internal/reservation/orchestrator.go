package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
	"github.com/AndresEncalada/tolerancia-fallos/internal/resilience"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/contracts"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

const service = "reservation-service"

type inventoryReserver interface {
	Reserve(ctx context.Context, itemID string) (InventoryResult, error)
}

type paymentProcessor interface {
	Process(ctx context.Context, amount float64) (string, error)
}

type notificationSender interface {
	Send(ctx context.Context, email, message string) error
}

// EventSink receives audit events for terminal workflow outcomes. Emission
// is best-effort and must never influence the outcome.
type EventSink interface {
	Emit(ctx context.Context, evt contracts.Event)
}

// CountsAsBreakerFailure is the breaker's failure classifier: sold-out and
// unknown-item are business outcomes, not dependency failures, and must not
// trip the circuit.
func CountsAsBreakerFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, apperr.ErrSoldOut) &&
		!errors.Is(err, apperr.ErrItemNotFound)
}

type Config struct {
	PaymentTimeout time.Duration
	NotifyTimeout  time.Duration
	NotifyEmail    string
}

func (c Config) withDefaults() Config {
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 5 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 2 * time.Second
	}
	if c.NotifyEmail == "" {
		c.NotifyEmail = "user@test.com"
	}
	return c
}

// Orchestrator sequences the reservation workflow: inventory behind the
// circuit breaker, payment under a fixed deadline, the durable write behind
// the retry policy, and a best-effort notification.
type Orchestrator struct {
	inventory inventoryReserver
	payment   paymentProcessor
	notifier  notificationSender
	store     Store

	breaker *resilience.Breaker
	retry   *resilience.RetryPolicy

	cfg     Config
	metrics *metrics.WorkflowMetrics
	events  EventSink
	newID   func() string
}

type OrchestratorOption func(*Orchestrator)

func WithWorkflowMetrics(m *metrics.WorkflowMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithEventSink(sink EventSink) OrchestratorOption {
	return func(o *Orchestrator) { o.events = sink }
}

// WithIDGenerator replaces order-id generation; tests use predictable ids.
func WithIDGenerator(newID func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(
	inventory inventoryReserver,
	payment paymentProcessor,
	notifier notificationSender,
	store Store,
	breaker *resilience.Breaker,
	retry *resilience.RetryPolicy,
	cfg Config,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		inventory: inventory,
		payment:   payment,
		notifier:  notifier,
		store:     store,
		breaker:   breaker,
		retry:     retry,
		cfg:       cfg.withDefaults(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create runs one reservation workflow. The four steps execute strictly
// sequentially; each terminal exit is mapped per the error taxonomy. A nil
// error means the caller gets the Outcome (success or degraded pending).
func (o *Orchestrator) Create(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	orderID := o.newID()

	// Step 1: inventory, behind the breaker.
	var inv InventoryResult
	err := o.breaker.Call(func() error {
		res, err := o.inventory.Reserve(ctx, req.ItemID)
		if err != nil {
			return err
		}
		inv = res
		return nil
	})
	switch {
	case errors.Is(err, resilience.ErrOpen):
		// Degraded success: accept for manual processing, no further steps.
		logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "inventory", Status: "short_circuited", Breaker: o.breaker.State().String()})
		o.countOutcome("pending")
		o.emit(ctx, contracts.EventReservationPending, orderID, map[string]any{"item_id": req.ItemID})
		return Outcome{
			Status:  OutcomePending,
			OrderID: orderID,
			Message: "systems saturated, your order will be processed manually",
		}, nil
	case errors.Is(err, apperr.ErrSoldOut), errors.Is(err, apperr.ErrItemNotFound):
		logging.Log(logging.Fields{Service: service, OrderID: orderID, ItemID: req.ItemID, Step: "inventory", Status: apperr.Kind(err)})
		o.countOutcome(apperr.Kind(err))
		o.emit(ctx, contracts.EventReservationRejected, orderID, map[string]any{"item_id": req.ItemID, "reason": apperr.Kind(err)})
		return Outcome{}, err
	case err != nil:
		logging.Log(logging.Fields{Service: service, OrderID: orderID, ItemID: req.ItemID, Step: "inventory", Status: "error", Breaker: o.breaker.State().String(), Message: err.Error()})
		o.countOutcome("inventory_error")
		o.emit(ctx, contracts.EventReservationFailed, orderID, map[string]any{"step": "inventory"})
		if !errors.Is(err, apperr.ErrInventoryDown) {
			err = fmt.Errorf("%w: %v", apperr.ErrInventoryDown, err)
		}
		return Outcome{}, err
	}
	logging.Log(logging.Fields{Service: service, OrderID: orderID, ItemID: req.ItemID, Step: "inventory", Status: "reserved", Message: fmt.Sprintf("remaining_stock=%d", inv.RemainingStock)})

	// Step 2: payment, with its own deadline. A slow gateway must cost at
	// most the deadline, never the full injected latency.
	payCtx, cancel := context.WithTimeout(ctx, o.cfg.PaymentTimeout)
	txID, err := o.payment.Process(payCtx, req.Amount)
	cancel()
	if err != nil {
		logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "payment", Status: apperr.Kind(err)})
		o.countOutcome(apperr.Kind(err))
		o.emit(ctx, contracts.EventReservationFailed, orderID, map[string]any{"step": "payment", "reason": apperr.Kind(err)})
		return Outcome{}, err
	}
	logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "payment", Status: "paid", Message: "transaction_id=" + txID})

	// Step 3: durable write, behind the retry policy. Money is already
	// captured; an exhausted write leaves a known inconsistency window.
	res := Reservation{OrderID: orderID, UserID: req.UserID, ItemID: req.ItemID, Amount: req.Amount, Status: StatusConfirmed}
	attempt := 0
	err = o.retry.Execute(ctx, func() error {
		attempt++
		if o.metrics != nil {
			o.metrics.RetryAttempts.Inc()
		}
		werr := o.store.Insert(ctx, res)
		if werr != nil {
			logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "persistence", Status: "write_failed", Attempt: attempt})
		}
		return werr
	}, apperr.Transient)
	if err != nil {
		var exhausted *resilience.ExhaustedError
		if errors.As(err, &exhausted) {
			err = fmt.Errorf("%w: %v", apperr.ErrPersistenceExhausted, exhausted.Last)
		}
		logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "persistence", Status: apperr.Kind(err), Attempt: attempt})
		o.countOutcome("persistence_exhausted")
		o.emit(ctx, contracts.EventReservationFailed, orderID, map[string]any{"step": "persistence", "attempts": attempt})
		return Outcome{}, err
	}
	logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "persistence", Status: "confirmed", Attempt: attempt})

	// Step 4: notification, best-effort. Failure is folded into the output
	// field and never changes the overall result.
	emailStatus := EmailSent
	notifyCtx, cancel := context.WithTimeout(ctx, o.cfg.NotifyTimeout)
	if err := o.notifier.Send(notifyCtx, o.cfg.NotifyEmail, "Reservation confirmed: "+orderID); err != nil {
		emailStatus = EmailFailed
		logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "notification", Status: "failed", Message: err.Error()})
		o.emit(ctx, contracts.EventNotificationFailed, orderID, nil)
	} else {
		logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "notification", Status: "sent"})
	}
	cancel()

	logging.Log(logging.Fields{Service: service, OrderID: orderID, Step: "workflow", Status: "success", DurationMS: time.Since(start).Milliseconds()})
	o.countOutcome("success")
	o.emit(ctx, contracts.EventReservationConfirmed, orderID, map[string]any{
		"item_id":      req.ItemID,
		"amount":       req.Amount,
		"email_status": emailStatus,
	})
	return Outcome{Status: OutcomeSuccess, OrderID: orderID, EmailStatus: emailStatus}, nil
}

// BreakerState exposes the breaker for health reporting.
func (o *Orchestrator) BreakerState() resilience.State {
	return o.breaker.State()
}

func (o *Orchestrator) countOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) emit(ctx context.Context, eventType, orderID string, payload map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Emit(ctx, contracts.Event{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
		Type:      eventType,
		Payload:   payload,
	})
}
