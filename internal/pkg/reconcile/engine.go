package reconcile

import (
	"context"
	"errors"
	"log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
)

// Outcome classifies what processing a verified event did. Duplicate
// deliveries are a success, not an error: the provider must stop
// redelivering, and the ledger must stay untouched.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyApplied
	OutcomeIgnored
	OutcomeRejected
	OutcomeRetryable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRejected:
		return "rejected"
	default:
		return "retryable"
	}
}

// Result is the explicit processing result handed back to the webhook
// endpoint: Rejected answers 4xx, Retryable answers 5xx, everything
// else acknowledges with 200.
type Result struct {
	Outcome Outcome
	Reason  error
}

// DedupeCache is an optional best-effort fast path in front of the
// database constraint. The constraint stays the authority; cache misses
// and cache failures only cost one extra insert attempt.
type DedupeCache interface {
	Seen(provider, key string) bool
	MarkSeen(provider, key string)
}

// Engine maps trusted provider events onto atomic ledger operations.
type Engine struct {
	recon  repository.ReconciliationRepository
	orders repository.OrderRepository
	cache  DedupeCache
}

// NewEngine creates a reconciliation engine. cache may be nil.
func NewEngine(recon repository.ReconciliationRepository, orders repository.OrderRepository, cache DedupeCache) *Engine {
	return &Engine{recon: recon, orders: orders, cache: cache}
}

// ProcessEvent applies a verified webhook event exactly once.
func (e *Engine) ProcessEvent(ctx context.Context, ev *payment.Event) Result {
	_ = ctx
	dedupeKey := ev.DedupeKey()

	if e.cache != nil && ev.LedgerAffecting() && e.cache.Seen(ev.Provider, dedupeKey) {
		return Result{Outcome: OutcomeAlreadyApplied}
	}

	var (
		res repository.ApplyResult
		err error
	)
	switch ev.Kind {
	case payment.EventKindPaid:
		res, err = e.recon.ApplyPaid(repository.ApplyPaidParams{
			Provider:        ev.Provider,
			DedupeKey:       dedupeKey,
			ProviderEventID: ev.ProviderEventID,
			EventType:       ev.Type,
			PayloadJSON:     string(ev.Raw),
			ExternalOrderID: ev.ExternalOrderID,
			OrderRef:        ev.OrderRef,
			PaidAt:          ev.OccurredAt,
		})
	case payment.EventKindRefund:
		res, err = e.recon.ApplyRefund(repository.ApplyRefundParams{
			Provider:        ev.Provider,
			DedupeKey:       dedupeKey,
			ProviderEventID: ev.ProviderEventID,
			EventType:       ev.Type,
			PayloadJSON:     string(ev.Raw),
			ExternalOrderID: ev.ExternalOrderID,
			OrderRef:        ev.OrderRef,
		})
	case payment.EventKindCanceled:
		return e.processCanceled(ev, dedupeKey)
	default:
		return e.recordIgnored(ev, dedupeKey)
	}

	if err != nil {
		if isRejection(err) {
			log.Printf("reconcile: %s event %s rejected: %v", ev.Provider, dedupeKey, err)
			return Result{Outcome: OutcomeRejected, Reason: err}
		}
		return Result{Outcome: OutcomeRetryable, Reason: err}
	}

	if e.cache != nil {
		e.cache.MarkSeen(ev.Provider, dedupeKey)
	}
	if res.Duplicate {
		return Result{Outcome: OutcomeAlreadyApplied}
	}
	return Result{Outcome: OutcomeApplied}
}

// processCanceled moves an unpaid order to canceled. Cancellation never
// touches the ledger, so a plain conditional transition is enough; the
// event row is still recorded for audit.
func (e *Engine) processCanceled(ev *payment.Event, dedupeKey string) Result {
	if err := e.recon.RecordIgnored(eventRow(ev, dedupeKey)); err != nil {
		return Result{Outcome: OutcomeRetryable, Reason: err}
	}

	orderID := ev.OrderRef
	if orderID == "" && ev.ExternalOrderID != "" {
		order, err := e.orders.GetByProviderExternalID(ev.Provider, ev.ExternalOrderID)
		if err != nil {
			// Unknown order: nothing to cancel, the ack is still correct.
			return Result{Outcome: OutcomeIgnored}
		}
		orderID = order.ID
	}
	if orderID == "" {
		return Result{Outcome: OutcomeIgnored}
	}

	moved, err := e.orders.TransitionStatus(orderID,
		[]string{models.OrderStatusCreated, models.OrderStatusPending},
		models.OrderStatusCanceled, nil)
	if err != nil {
		return Result{Outcome: OutcomeRetryable, Reason: err}
	}
	if !moved {
		return Result{Outcome: OutcomeAlreadyApplied}
	}
	return Result{Outcome: OutcomeApplied}
}

func (e *Engine) recordIgnored(ev *payment.Event, dedupeKey string) Result {
	if err := e.recon.RecordIgnored(eventRow(ev, dedupeKey)); err != nil {
		return Result{Outcome: OutcomeRetryable, Reason: err}
	}
	return Result{Outcome: OutcomeIgnored}
}

func eventRow(ev *payment.Event, dedupeKey string) *models.PaymentWebhookEvent {
	return &models.PaymentWebhookEvent{
		Provider:        ev.Provider,
		DedupeKey:       dedupeKey,
		ProviderEventID: ev.ProviderEventID,
		EventType:       ev.Type,
		PayloadJSON:     string(ev.Raw),
		SignatureValid:  true,
	}
}

// isRejection separates payload problems (answered 4xx, provider stops
// redelivering) from storage trouble (answered 5xx, provider retries).
func isRejection(err error) bool {
	return errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrInvalidTransition) ||
		errors.Is(err, repository.ErrInsufficientCredits)
}

// CancelAbandoned closes provider-side checkout and cancels the local
// order, used by manual lifecycle management of stale checkouts.
func CancelAbandoned(ctx context.Context, provider payment.Provider, orders repository.OrderRepository, orderID string) error {
	order, err := orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return nil
	}
	if order.ExternalOrderID != "" {
		if err := provider.CloseOrder(ctx, order.ExternalOrderID); err != nil {
			return err
		}
	}
	moved, err := orders.TransitionStatus(order.ID,
		[]string{models.OrderStatusCreated, models.OrderStatusPending},
		models.OrderStatusCanceled, nil)
	if err != nil {
		return err
	}
	if !moved {
		log.Printf("reconcile: order %s changed state before cancel, leaving as is", order.ID)
	}
	return nil
}
