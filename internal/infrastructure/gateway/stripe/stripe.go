// Package stripe adapts Stripe Checkout Sessions to the payment gateway port.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

const (
	Name            = "stripe"
	SignatureHeader = "Stripe-Signature"

	// DefaultSignatureTolerance bounds the age of a signed webhook timestamp.
	DefaultSignatureTolerance = 5 * time.Minute
)

type Config struct {
	BaseURL            string
	SecretKey          string
	WebhookSecret      string
	Currency           string
	SuccessURL         string
	CancelURL          string
	Timeout            time.Duration
	SignatureTolerance time.Duration
}

type Gateway struct {
	cfg    Config
	client *gateway.Client
	now    func() time.Time
}

func New(cfg Config, logger observability.Logger) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.SignatureTolerance <= 0 {
		cfg.SignatureTolerance = DefaultSignatureTolerance
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Gateway{
		cfg:    cfg,
		client: gateway.NewClient(Name, strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, logger),
		now:    time.Now,
	}
}

func (g *Gateway) Name() string            { return Name }
func (g *Gateway) Currency() string        { return g.cfg.Currency }
func (g *Gateway) SignatureHeader() string { return SignatureHeader }

type checkoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
	Customer string `json:"customer"`
}

func (s checkoutSession) orderNumber() string {
	if n := s.Metadata["order_number"]; n != "" {
		return n
	}
	return s.ClientReferenceID
}

func (g *Gateway) CreateSession(ctx context.Context, req dompay.SessionRequest) (dompay.Session, error) {
	if g.cfg.SecretKey == "" {
		return dompay.Session{}, apperr.External(nil, "stripe: secret key is not configured")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", g.cfg.SuccessURL)
	form.Set("cancel_url", g.cfg.CancelURL)
	form.Set("client_reference_id", req.OrderNumber)
	form.Set("metadata[order_number]", req.OrderNumber)
	form.Set("payment_intent_data[metadata][order_number]", req.OrderNumber)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinor(req.Amount), 10))
	name := req.Description
	if name == "" {
		name = "Order " + req.OrderNumber
	}
	form.Set("line_items[0][price_data][product_data][name]", name)

	var out checkoutSession
	err := g.client.Do(ctx, "create_checkout_session", gateway.Request{
		Method:      http.MethodPost,
		Path:        "/v1/checkout/sessions",
		Body:        strings.NewReader(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Header:      g.auth(),
	}, &out)
	if err != nil {
		return dompay.Session{}, err
	}
	return dompay.Session{ID: out.ID, RedirectURL: out.URL, Status: out.Status}, nil
}

// CaptureSession retrieves the checkout session; Checkout captures on
// completion so there is no separate capture call.
func (g *Gateway) CaptureSession(ctx context.Context, sessionID string) (dompay.Capture, error) {
	if g.cfg.SecretKey == "" {
		return dompay.Capture{}, apperr.External(nil, "stripe: secret key is not configured")
	}

	var out checkoutSession
	err := g.client.Do(ctx, "retrieve_checkout_session", gateway.Request{
		Method: http.MethodGet,
		Path:   "/v1/checkout/sessions/" + url.PathEscape(sessionID),
		Header: g.auth(),
	}, &out)
	if err != nil {
		return dompay.Capture{}, err
	}

	id := out.PaymentIntent
	if id == "" {
		id = out.ID
	}
	return dompay.Capture{
		ID:     id,
		Status: out.PaymentStatus,
		Kind:   sessionKind(out),
		Payer: dompay.Payer{
			ID:    out.Customer,
			Name:  out.CustomerDetails.Name,
			Email: out.CustomerDetails.Email,
		},
		Amount:   fromMinor(out.AmountTotal),
		Currency: strings.ToUpper(out.Currency),
	}, nil
}

func sessionKind(s checkoutSession) dompay.Kind {
	switch {
	case s.PaymentStatus == "paid":
		return dompay.KindSucceeded
	case s.Status == "expired":
		return dompay.KindCancelled
	}
	return dompay.KindUnknown
}

// VerifyWebhookSignature checks a "t=<unix>,v1=<hex>" header against the
// HMAC of "<t>.<payload>" and rejects timestamps outside the tolerance.
func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.cfg.WebhookSecret == "" || signature == "" {
		return false
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return false
	}
	age := g.now().Sub(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	if age > g.cfg.SignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(got, expected) {
			return true
		}
	}
	return false
}

// Sign builds a Stripe-Signature header value for payload at ts.
func Sign(secret string, payload []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + gateway.SignHex(secret, append([]byte(t+"."), payload...))
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

func (g *Gateway) ParseEvent(payload []byte) (dompay.Event, error) {
	var raw webhookEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return dompay.Event{}, apperr.Validation("stripe: malformed webhook payload")
	}

	evt := dompay.Event{ID: raw.ID, Provider: Name, RawType: raw.Type, Kind: dompay.KindUnknown}

	if strings.HasPrefix(raw.Type, "payment_intent.") {
		var pi paymentIntent
		if err := json.Unmarshal(raw.Data.Object, &pi); err != nil {
			return dompay.Event{}, apperr.Validation("stripe: malformed payment intent")
		}
		switch raw.Type {
		case "payment_intent.payment_failed":
			evt.Kind = dompay.KindFailed
		case "payment_intent.canceled":
			evt.Kind = dompay.KindCancelled
		}
		evt.TransactionID = pi.ID
		evt.OrderNumber = pi.Metadata["order_number"]
		if pi.Amount > 0 {
			evt.Amount, evt.Currency = fromMinor(pi.Amount), strings.ToUpper(pi.Currency)
		}
		return evt, nil
	}

	if !strings.HasPrefix(raw.Type, "checkout.session.") {
		return evt, nil
	}
	var s checkoutSession
	if err := json.Unmarshal(raw.Data.Object, &s); err != nil {
		return dompay.Event{}, apperr.Validation("stripe: malformed checkout session")
	}
	switch raw.Type {
	case "checkout.session.completed":
		if s.PaymentStatus == "paid" {
			evt.Kind = dompay.KindSucceeded
		}
	case "checkout.session.async_payment_succeeded":
		evt.Kind = dompay.KindSucceeded
	case "checkout.session.async_payment_failed":
		evt.Kind = dompay.KindFailed
	case "checkout.session.expired":
		evt.Kind = dompay.KindCancelled
	}
	evt.SessionID = s.ID
	evt.OrderNumber = s.orderNumber()
	evt.TransactionID = s.PaymentIntent
	if evt.TransactionID == "" {
		evt.TransactionID = s.ID
	}
	if s.AmountTotal > 0 {
		evt.Amount, evt.Currency = fromMinor(s.AmountTotal), strings.ToUpper(s.Currency)
	}
	return evt, nil
}

func (g *Gateway) auth() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	return h
}

func toMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinor(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
