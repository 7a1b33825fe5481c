// Package paypal adapts the PayPal Orders v2 API to the payment gateway port.
package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

const (
	Name            = "paypal"
	SignatureHeader = "Paypal-Transmission-Sig"
)

type Config struct {
	BaseURL       string
	ClientID      string
	Secret        string
	WebhookSecret string
	Currency      string
	ReturnURL     string
	CancelURL     string
	Timeout       time.Duration
}

type Gateway struct {
	cfg    Config
	client *gateway.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func New(cfg Config, logger observability.Logger) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Gateway{
		cfg:    cfg,
		client: gateway.NewClient(Name, strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout, logger),
	}
}

func (g *Gateway) Name() string            { return Name }
func (g *Gateway) Currency() string        { return g.cfg.Currency }
func (g *Gateway) SignatureHeader() string { return SignatureHeader }

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      *money `json:"amount,omitempty"`
	Payments    *struct {
		Captures []capture `json:"captures"`
	} `json:"payments,omitempty"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount money  `json:"amount"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Payer         struct {
		PayerID string `json:"payer_id"`
		Email   string `json:"email_address"`
		Name    struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
}

func (g *Gateway) CreateSession(ctx context.Context, req dompay.SessionRequest) (dompay.Session, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return dompay.Session{}, err
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []purchaseUnit{{
			ReferenceID: req.OrderNumber,
			CustomID:    req.OrderNumber,
			Description: req.Description,
			Amount:      &money{CurrencyCode: req.Currency, Value: req.Amount.StringFixed(2)},
		}},
		"application_context": map[string]string{
			"return_url":  g.cfg.ReturnURL,
			"cancel_url":  g.cfg.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var out orderResponse
	err = g.client.Do(ctx, "create_order", gateway.Request{
		Method: http.MethodPost,
		Path:   "/v2/checkout/orders",
		Body:   body,
		Header: bearer(token),
	}, &out)
	if err != nil {
		return dompay.Session{}, err
	}

	session := dompay.Session{ID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			session.RedirectURL = l.Href
			break
		}
	}
	return session, nil
}

func (g *Gateway) CaptureSession(ctx context.Context, sessionID string) (dompay.Capture, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return dompay.Capture{}, err
	}

	var out orderResponse
	err = g.client.Do(ctx, "capture_order", gateway.Request{
		Method: http.MethodPost,
		Path:   "/v2/checkout/orders/" + url.PathEscape(sessionID) + "/capture",
		Body:   struct{}{},
		Header: bearer(token),
	}, &out)
	if err != nil {
		return dompay.Capture{}, err
	}

	result := dompay.Capture{
		ID:     out.ID,
		Status: out.Status,
		Kind:   dompay.KindUnknown,
		Payer: dompay.Payer{
			ID:    out.Payer.PayerID,
			Email: out.Payer.Email,
			Name:  strings.TrimSpace(out.Payer.Name.GivenName + " " + out.Payer.Name.Surname),
		},
	}
	if c, ok := firstCapture(out.PurchaseUnits); ok {
		result.ID = c.ID
		result.Status = c.Status
		result.Currency = c.Amount.CurrencyCode
		amount, err := decimal.NewFromString(c.Amount.Value)
		if err != nil {
			return dompay.Capture{}, apperr.External(err, "paypal: capture %s has unparseable amount %q", c.ID, c.Amount.Value)
		}
		result.Amount = amount
	}
	result.Kind = captureKind(result.Status)
	return result, nil
}

func firstCapture(units []purchaseUnit) (capture, bool) {
	for _, u := range units {
		if u.Payments != nil && len(u.Payments.Captures) > 0 {
			return u.Payments.Captures[0], true
		}
	}
	return capture{}, false
}

func captureKind(status string) dompay.Kind {
	switch status {
	case "COMPLETED":
		return dompay.KindSucceeded
	case "DECLINED", "FAILED":
		return dompay.KindFailed
	case "VOIDED":
		return dompay.KindCancelled
	}
	return dompay.KindUnknown
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	return gateway.VerifyHex(g.cfg.WebhookSecret, payload, signature)
}

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string         `json:"id"`
		Status            string         `json:"status"`
		CustomID          string         `json:"custom_id"`
		Amount            *money         `json:"amount"`
		PurchaseUnits     []purchaseUnit `json:"purchase_units"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

var eventKinds = map[string]dompay.Kind{
	"PAYMENT.CAPTURE.COMPLETED": dompay.KindSucceeded,
	"CHECKOUT.ORDER.COMPLETED":  dompay.KindSucceeded,
	"PAYMENT.CAPTURE.DENIED":    dompay.KindFailed,
	"PAYMENT.CAPTURE.DECLINED":  dompay.KindFailed,
	"CHECKOUT.ORDER.VOIDED":     dompay.KindCancelled,
}

// ParseEvent normalizes capture-scoped and order-scoped notifications.
func (g *Gateway) ParseEvent(payload []byte) (dompay.Event, error) {
	var raw webhookEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return dompay.Event{}, apperr.Validation("paypal: malformed webhook payload")
	}

	evt := dompay.Event{
		ID:       raw.ID,
		Provider: Name,
		RawType:  raw.EventType,
		Kind:     dompay.KindUnknown,
	}
	if k, ok := eventKinds[raw.EventType]; ok {
		evt.Kind = k
	}

	res := raw.Resource
	amount := res.Amount
	if strings.HasPrefix(raw.EventType, "PAYMENT.CAPTURE.") {
		evt.TransactionID = res.ID
		evt.SessionID = res.SupplementaryData.RelatedIDs.OrderID
		evt.OrderNumber = res.CustomID
	} else {
		evt.SessionID = res.ID
		evt.TransactionID = res.ID
		if len(res.PurchaseUnits) > 0 {
			pu := res.PurchaseUnits[0]
			evt.OrderNumber = pu.CustomID
			if evt.OrderNumber == "" {
				evt.OrderNumber = pu.ReferenceID
			}
			if amount == nil {
				amount = pu.Amount
			}
			if c, ok := firstCapture(res.PurchaseUnits); ok {
				evt.TransactionID = c.ID
			}
		}
	}
	if amount != nil && amount.Value != "" {
		v, err := decimal.NewFromString(amount.Value)
		if err != nil {
			return dompay.Event{}, apperr.Validation("paypal: malformed amount %q", amount.Value)
		}
		evt.Amount, evt.Currency = v, strings.ToUpper(amount.CurrencyCode)
	}
	return evt, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached OAuth token, refreshing it a minute early.
func (g *Gateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.expiresAt) {
		return g.token, nil
	}
	if g.cfg.ClientID == "" || g.cfg.Secret == "" {
		return "", apperr.External(nil, "paypal: credentials are not configured")
	}

	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID+":"+g.cfg.Secret)))

	var out tokenResponse
	err := g.client.Do(ctx, "oauth_token", gateway.Request{
		Method:      http.MethodPost,
		Path:        "/v1/oauth2/token",
		Body:        strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		Header:      h,
	}, &out)
	if err != nil {
		return "", err
	}

	g.token = out.AccessToken
	g.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return g.token, nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
