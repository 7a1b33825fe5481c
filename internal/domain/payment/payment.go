// Package payment holds the provider-neutral vocabulary shared by the gateway
// adapters and the reconciliation use cases.
package payment

import (
	"context"
	"strings"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

var ErrUnknownProvider = apperr.NotFound("unknown payment provider")

// Kind is the normalized outcome carried by a provider event.
type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
	KindUnknown   Kind = "unknown"
)

// Event is a webhook payload after provider-specific decoding. At least one
// of SessionID or OrderNumber is set for events that can be correlated.
type Event struct {
	ID            string
	Provider      string
	Kind          Kind
	RawType       string
	SessionID     string
	OrderNumber   string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
}

// HasAmount reports whether the provider included a settled amount.
func (e Event) HasAmount() bool { return e.Currency != "" && !e.Amount.IsZero() }

type SessionRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type Session struct {
	ID          string
	RedirectURL string
	Status      string
}

type Payer struct {
	ID    string
	Name  string
	Email string
}

// Capture is the provider's answer to a capture or verification request.
type Capture struct {
	ID       string
	Status   string
	Kind     Kind
	Payer    Payer
	Amount   decimal.Decimal
	Currency string
}

// Gateway is implemented once per payment provider.
type Gateway interface {
	Name() string
	// Currency is the currency the provider charges in.
	Currency() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	CaptureSession(ctx context.Context, sessionID string) (Capture, error)
	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	// VerifyWebhookSignature fails closed: a missing signature or secret is invalid.
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseEvent(payload []byte) (Event, error)
}

// Registry resolves gateways by provider name.
type Registry map[string]Gateway

func NewRegistry(gateways ...Gateway) Registry {
	r := make(Registry, len(gateways))
	for _, g := range gateways {
		if g != nil {
			r[g.Name()] = g
		}
	}
	return r
}

func (r Registry) Get(provider string) (Gateway, error) {
	g, ok := r[strings.ToLower(provider)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return g, nil
}
