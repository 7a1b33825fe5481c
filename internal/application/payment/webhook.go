package payment

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseWebhook = "payment.webhook"

// Webhook outcomes, also used as the outcome label of payment_webhooks_total.
const (
	WebhookUnknownProvider  = "unknown_provider"
	WebhookInvalidSignature = "invalid_signature"
	WebhookMalformed        = "malformed"
	WebhookIgnored          = "ignored"
	WebhookOrderNotFound    = "order_not_found"
	WebhookAmountMismatch   = "amount_mismatch"
	WebhookError            = "error"
)

type WebhookInput struct {
	Provider  string
	Payload   []byte
	Signature string
}

type WebhookResult struct {
	Outcome string
	EventID string
	Kind    dompay.Kind
}

type HandleWebhookUseCase struct {
	gateways   dompay.Registry
	pricing    dompay.Pricing
	reconciler *Reconciler
	in         application.Instruments
	received   observability.Counter // payment_webhooks_total{provider,outcome}
}

func NewHandleWebhookUseCase(
	gateways dompay.Registry,
	pricing dompay.Pricing,
	reconciler *Reconciler,
	tel observability.Observability,
) *HandleWebhookUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &HandleWebhookUseCase{
		gateways:   gateways,
		pricing:    pricing,
		reconciler: reconciler,
		in:         application.NewInstruments(tel, paymentService),
		received:   tel.Metrics().Counter(observability.MPaymentWebhooks),
	}
}

// Execute verifies and applies one provider notification. The returned error
// is for logging only; callers acknowledge the delivery regardless so that
// providers neither retry nor learn why an event was dropped.
func (uc *HandleWebhookUseCase) Execute(ctx context.Context, cmd WebhookInput) (res WebhookResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseWebhook, "HandleWebhook",
		attribute.String("payment.provider", cmd.Provider),
		attribute.Int("payload.bytes", len(cmd.Payload)),
	)
	providerLabel := "unknown"
	defer func() {
		uc.received.Add(1,
			observability.L("provider", providerLabel),
			observability.L("outcome", res.Outcome),
		)
		run.Field("webhook_outcome", res.Outcome)
		run.End(err)
	}()

	gw, err := uc.gateways.Get(cmd.Provider)
	if err != nil {
		run.Fail("UNKNOWN_PROVIDER")
		res.Outcome = WebhookUnknownProvider
		return res, err
	}
	providerLabel = gw.Name()

	if !gw.VerifyWebhookSignature(cmd.Payload, cmd.Signature) {
		run.Fail("INVALID_SIGNATURE")
		run.Log.Warn("webhook_signature_invalid",
			observability.F("security", true),
			observability.F("provider", gw.Name()),
			observability.F("signature_present", cmd.Signature != ""),
		)
		res.Outcome = WebhookInvalidSignature
		return res, apperr.Security("webhook signature verification failed")
	}

	evt, err := gw.ParseEvent(cmd.Payload)
	if err != nil {
		run.Fail("MALFORMED_PAYLOAD")
		res.Outcome = WebhookMalformed
		return res, err
	}
	res.EventID, res.Kind = evt.ID, evt.Kind
	run.Field("event_id", evt.ID)
	run.Field("event_type", evt.RawType)
	run.Span().SetAttributes(
		attribute.String("payment.event_type", evt.RawType),
		attribute.String("payment.session_id", evt.SessionID),
		attribute.String("order.number", evt.OrderNumber),
	)

	if evt.Kind == dompay.KindUnknown {
		run.Log.Info("webhook_event_ignored", observability.F("event_type", evt.RawType))
		res.Outcome = WebhookIgnored
		return res, nil
	}

	logger := run.Log.With(
		observability.F("event_type", evt.RawType),
		observability.F("session_id", evt.SessionID),
		observability.F("order_number", evt.OrderNumber),
	)

	o, err := uc.reconciler.Resolve(ctx, gw.Name(), evt.SessionID, evt.OrderNumber)
	if errors.Is(err, domorder.ErrNotFound) {
		logger.Warn("webhook_order_not_found")
		res.Outcome = WebhookOrderNotFound
		return res, nil
	}
	if err != nil {
		res.Outcome = WebhookError
		logger.Error("webhook_apply_failed", observability.F("reason", err.Error()))
		return res, err
	}

	if evt.Kind == dompay.KindSucceeded && evt.HasAmount() {
		expected, perr := uc.pricing.Expected(o.Total, evt.Currency)
		if perr != nil || !uc.pricing.Matches(evt.Amount, expected) {
			run.Fail("AMOUNT_MISMATCH")
			logger.Warn("payment_amount_mismatch",
				observability.F("security", true),
				observability.F("order_number", o.Number),
				observability.F("amount", evt.Amount.String()),
				observability.F("currency", evt.Currency),
				observability.F("expected", expected.String()),
			)
			res.Outcome = WebhookAmountMismatch
			return res, apperr.Security("webhook amount does not match the order total")
		}
	}

	applied, err := uc.reconciler.Apply(ctx, Outcome{
		Provider:      gw.Name(),
		SessionID:     evt.SessionID,
		OrderNumber:   o.Number,
		TransactionID: evt.TransactionID,
		Kind:          evt.Kind,
	})
	if err != nil {
		res.Outcome = WebhookError
		logger.Error("webhook_apply_failed", observability.F("reason", err.Error()))
		return res, err
	}

	res.Outcome = applied.Change.String()
	return res, nil
}
