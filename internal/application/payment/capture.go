package payment

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseCapture = "payment.capture"

type CaptureInput struct {
	Provider  string
	SessionID string
}

type CaptureResult struct {
	CaptureID     string
	Status        string
	Payer         dompay.Payer
	Amount        decimal.Decimal
	Currency      string
	OrderNumber   string
	OrderStatus   domorder.Status
	PaymentStatus domorder.PaymentStatus
}

type CaptureUseCase struct {
	gateways   dompay.Registry
	repo       domorder.Repository
	pricing    dompay.Pricing
	reconciler *Reconciler
	in         application.Instruments
}

func NewCaptureUseCase(
	gateways dompay.Registry,
	repo domorder.Repository,
	pricing dompay.Pricing,
	reconciler *Reconciler,
	tel observability.Observability,
) *CaptureUseCase {
	return &CaptureUseCase{
		gateways:   gateways,
		repo:       repo,
		pricing:    pricing,
		reconciler: reconciler,
		in:         application.NewInstruments(tel, paymentService),
	}
}

// Execute captures a provider session synchronously and records the result.
// A captured amount that does not match the order is treated as tampering.
func (uc *CaptureUseCase) Execute(ctx context.Context, cmd CaptureInput) (_ *CaptureResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseCapture, "CapturePayment",
		attribute.String("payment.provider", cmd.Provider),
		attribute.String("payment.session_id", cmd.SessionID),
	)
	defer func() { run.End(err) }()

	gw, err := uc.gateways.Get(cmd.Provider)
	if err != nil {
		run.Fail("UNKNOWN_PROVIDER")
		return nil, err
	}
	if cmd.SessionID == "" {
		run.Fail("SESSION_REQUIRED")
		return nil, apperr.Validation("session id is required")
	}

	o, err := uc.repo.FindBySessionID(ctx, gw.Name(), cmd.SessionID)
	if err != nil {
		return nil, err
	}
	run.Field("order_number", o.Number)

	start := time.Now()
	capture, err := gw.CaptureSession(ctx, cmd.SessionID)
	uc.in.External(gw.Name(), "capture", start, err)
	if err != nil {
		run.Fail("PROVIDER_FAILED")
		return nil, err
	}

	if capture.Kind == dompay.KindSucceeded {
		currency := capture.Currency
		if currency == "" {
			currency = gw.Currency()
		}
		expected, err := uc.pricing.Expected(o.Total, currency)
		if err != nil {
			return nil, err
		}
		if !uc.pricing.Matches(capture.Amount, expected) {
			run.Fail("AMOUNT_MISMATCH")
			run.Log.Warn("payment_amount_mismatch",
				observability.F("security", true),
				observability.F("order_number", o.Number),
				observability.F("capture_id", capture.ID),
				observability.F("captured", capture.Amount.String()),
				observability.F("expected", expected.String()),
				observability.F("currency", currency),
			)
			return nil, apperr.Security("captured amount does not match the order total")
		}
	}

	res, err := uc.reconciler.Apply(ctx, Outcome{
		Provider:      gw.Name(),
		SessionID:     cmd.SessionID,
		OrderNumber:   o.Number,
		TransactionID: capture.ID,
		Kind:          capture.Kind,
	})
	if err != nil {
		return nil, err
	}
	if res.Order != nil {
		o = res.Order
	}
	run.Field("change", res.Change.String())

	return &CaptureResult{
		CaptureID:     capture.ID,
		Status:        capture.Status,
		Payer:         capture.Payer,
		Amount:        capture.Amount,
		Currency:      capture.Currency,
		OrderNumber:   o.Number,
		OrderStatus:   o.Status,
		PaymentStatus: o.Payment.Status,
	}, nil
}
