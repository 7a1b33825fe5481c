package payment

import (
	"context"
	"errors"
	"fmt"

	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
)

const (
	paymentService    = "payment-service"
	maxUpdateAttempts = 3
)

// Outcome is a provider result to record against an order.
type Outcome struct {
	Provider      string
	SessionID     string
	OrderNumber   string
	TransactionID string
	Kind          dompay.Kind
}

type ApplyResult struct {
	Order  *domorder.Order
	Change domorder.PaymentChange
}

// Reconciler applies payment outcomes to orders idempotently. It is shared by
// the capture and webhook use cases so both paths obey the same policy.
type Reconciler struct {
	repo      domorder.Repository
	publisher domoutbox.Publisher
	policy    domorder.OutcomePolicy
	log       observability.Logger
}

func NewReconciler(
	repo domorder.Repository,
	publisher domoutbox.Publisher,
	policy domorder.OutcomePolicy,
	tel observability.Observability,
) *Reconciler {
	if !policy.Valid() {
		policy = domorder.PolicyCompletedWins
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Reconciler{
		repo:      repo,
		publisher: publisher,
		policy:    policy,
		log:       tel.Logger().With(observability.F("component", "reconciler")),
	}
}

func (r *Reconciler) Policy() domorder.OutcomePolicy { return r.policy }

// Resolve finds the order an outcome refers to, preferring the provider
// session id and falling back to an explicit order number.
func (r *Reconciler) Resolve(ctx context.Context, provider, sessionID, orderNumber string) (*domorder.Order, error) {
	if sessionID != "" {
		o, err := r.repo.FindBySessionID(ctx, provider, sessionID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domorder.ErrNotFound) {
			return nil, err
		}
	}
	if orderNumber != "" {
		return r.repo.FindByNumber(ctx, orderNumber)
	}
	return nil, domorder.ErrNotFound
}

// Apply records out on the matching order. Repeated outcomes are no-ops and
// concurrent writers are resolved by reloading and reapplying.
func (r *Reconciler) Apply(ctx context.Context, out Outcome) (ApplyResult, error) {
	status, ok := paymentStatusFor(out.Kind)
	if !ok {
		return ApplyResult{Change: domorder.PaymentUnchanged}, nil
	}
	logger := logctx.FromOr(ctx, r.log)

	for attempt := 1; ; attempt++ {
		o, err := r.Resolve(ctx, out.Provider, out.SessionID, out.OrderNumber)
		if err != nil {
			return ApplyResult{}, err
		}
		previous := o.Payment.Status

		change := o.ApplyPayment(status, out.TransactionID, r.policy)
		switch change {
		case domorder.PaymentRejected:
			logger.Warn("payment_outcome_conflict",
				observability.F("order_number", o.Number),
				observability.F("current_payment_status", string(previous)),
				observability.F("incoming_payment_status", string(status)),
				observability.F("transaction_id", out.TransactionID),
				observability.F("policy", string(r.policy)),
			)
			return ApplyResult{Order: o, Change: change}, nil
		case domorder.PaymentUnchanged:
			return ApplyResult{Order: o, Change: change}, nil
		}

		err = r.repo.Update(ctx, o)
		if errors.Is(err, domorder.ErrStaleVersion) && attempt < maxUpdateAttempts {
			logger.Debug("payment_update_retry", observability.F("order_number", o.Number), observability.F("attempt", attempt))
			continue
		}
		if err != nil {
			return ApplyResult{}, fmt.Errorf("payment: update order %s: %w", o.Number, err)
		}

		logger.Info("payment_outcome_applied",
			observability.F("order_number", o.Number),
			observability.F("payment_status", string(o.Payment.Status)),
			observability.F("order_status", string(o.Status)),
			observability.F("transaction_id", out.TransactionID),
		)
		if r.publisher != nil {
			if perr := r.publisher.Publish(ctx, domorder.NewPaymentUpdatedEvent(o)); perr != nil {
				logger.Warn("event_publish_failed",
					observability.F("event", domorder.EventPaymentUpdated),
					observability.Err(perr),
				)
			}
		}
		return ApplyResult{Order: o, Change: change}, nil
	}
}

func paymentStatusFor(k dompay.Kind) (domorder.PaymentStatus, bool) {
	switch k {
	case dompay.KindSucceeded:
		return domorder.PaymentStatusCompleted, true
	case dompay.KindFailed:
		return domorder.PaymentStatusFailed, true
	case dompay.KindCancelled:
		return domorder.PaymentStatusCancelled, true
	}
	return "", false
}
