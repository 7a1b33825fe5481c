package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseCreateSession = "payment.create_session"

type CreateSessionInput struct {
	Provider    string
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
}

type CreateSessionResult struct {
	SessionID   string
	RedirectURL string
	Status      string
	Amount      decimal.Decimal
	Currency    string
}

type CreateSessionUseCase struct {
	gateways dompay.Registry
	repo     domorder.Repository
	pricing  dompay.Pricing
	in       application.Instruments
}

func NewCreateSessionUseCase(
	gateways dompay.Registry,
	repo domorder.Repository,
	pricing dompay.Pricing,
	tel observability.Observability,
) *CreateSessionUseCase {
	return &CreateSessionUseCase{
		gateways: gateways,
		repo:     repo,
		pricing:  pricing,
		in:       application.NewInstruments(tel, paymentService),
	}
}

// Execute opens a provider checkout for an unpaid order. The amount sent to
// the provider is always recomputed from the stored order total.
func (uc *CreateSessionUseCase) Execute(ctx context.Context, cmd CreateSessionInput) (_ *CreateSessionResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseCreateSession, "CreatePaymentSession",
		attribute.String("payment.provider", cmd.Provider),
		attribute.String("order.number", cmd.OrderNumber),
	)
	defer func() { run.End(err) }()

	gw, err := uc.gateways.Get(cmd.Provider)
	if err != nil {
		run.Fail("UNKNOWN_PROVIDER")
		return nil, err
	}
	if cmd.OrderNumber == "" {
		run.Fail("NUMBER_REQUIRED")
		return nil, apperr.Validation("order number is required")
	}
	if !cmd.Amount.IsPositive() {
		run.Fail("AMOUNT_REQUIRED")
		return nil, apperr.Validation("amount must be greater than zero")
	}

	o, err := uc.repo.FindByNumber(ctx, cmd.OrderNumber)
	if err != nil {
		return nil, err
	}
	if string(o.PaymentMethod) != gw.Name() {
		run.Fail("METHOD_MISMATCH")
		return nil, apperr.Validation("order %s is not paid with %s", o.Number, gw.Name())
	}
	if o.Status != domorder.StatusPending {
		run.Fail("ORDER_NOT_PAYABLE")
		return nil, apperr.Conflict("order %s is %s and cannot be paid", o.Number, o.Status)
	}
	if o.Payment.Status == domorder.PaymentStatusCompleted {
		run.Fail("ALREADY_PAID")
		return nil, apperr.Conflict("order %s is already paid", o.Number)
	}

	currency := strings.ToUpper(cmd.Currency)
	if currency == "" {
		currency = gw.Currency()
	}
	if currency != gw.Currency() {
		run.Fail("CURRENCY_MISMATCH")
		return nil, apperr.Validation("%s charges in %s, not %s", gw.Name(), gw.Currency(), currency)
	}
	expected, err := uc.pricing.Expected(o.Total, currency)
	if err != nil {
		return nil, err
	}
	if !uc.pricing.Matches(cmd.Amount, expected) {
		run.Fail("AMOUNT_MISMATCH")
		return nil, apperr.Validation("amount %s does not match order total %s %s",
			cmd.Amount.StringFixed(2), expected.StringFixed(2), currency)
	}

	start := time.Now()
	session, err := gw.CreateSession(ctx, dompay.SessionRequest{
		OrderNumber: o.Number,
		Amount:      expected,
		Currency:    currency,
		Description: "Order " + o.Number,
	})
	uc.in.External(gw.Name(), "create_session", start, err)
	if err != nil {
		run.Fail("PROVIDER_FAILED")
		return nil, err
	}
	run.Field("session_id", session.ID)

	if err := uc.attach(ctx, o, gw.Name(), session.ID); err != nil {
		return nil, err
	}

	return &CreateSessionResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		Status:      session.Status,
		Amount:      expected,
		Currency:    currency,
	}, nil
}

func (uc *CreateSessionUseCase) attach(ctx context.Context, o *domorder.Order, provider, sessionID string) error {
	for attempt := 1; ; attempt++ {
		o.AttachSession(provider, sessionID)
		err := uc.repo.Update(ctx, o)
		if !errors.Is(err, domorder.ErrStaleVersion) || attempt >= maxUpdateAttempts {
			return err
		}
		if o, err = uc.repo.FindByNumber(ctx, o.Number); err != nil {
			return err
		}
	}
}
