package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

type fakeStripe struct {
	mu   sync.Mutex
	form url.Values
}

func (f *fakeStripe) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

func (f *fakeStripe) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.form = r.PostForm
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1","status":"open"}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_paid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_paid","status":"complete","payment_status":"paid","payment_intent":"pi_1",
			"amount_total":1299,"currency":"usd","customer":"cus_1",
			"customer_details":{"name":"Ana Lopez","email":"ana@example.com"}}`))
	})
	mux.HandleFunc("/v1/checkout/sessions/cs_expired", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cs_expired","status":"expired","payment_status":"unpaid"}`))
	})
	return mux
}

func newGateway(t *testing.T) (*Gateway, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, SecretKey: "sk_test", WebhookSecret: "whsec"}, nil), fake
}

func TestCreateSessionSendsMinorUnits(t *testing.T) {
	t.Parallel()

	g, fake := newGateway(t)
	session, err := g.CreateSession(context.Background(), dompay.SessionRequest{
		OrderNumber: "ORD-2025-00001",
		Amount:      decimal.RequireFromString("12.99"),
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID != "cs_1" || session.RedirectURL != "https://checkout.stripe.test/cs_1" {
		t.Fatalf("unexpected session %+v", session)
	}

	form := fake.lastForm()
	if got := form.Get("line_items[0][price_data][unit_amount]"); got != "1299" {
		t.Errorf("unit_amount = %q, want 1299", got)
	}
	if got := form.Get("line_items[0][price_data][currency]"); got != "usd" {
		t.Errorf("currency = %q", got)
	}
	if form.Get("client_reference_id") != "ORD-2025-00001" || form.Get("metadata[order_number]") != "ORD-2025-00001" {
		t.Errorf("order reference missing: %v", form)
	}
}

func TestPaymentIntentEventsCarrySessionOrderNumber(t *testing.T) {
	t.Parallel()

	g, fake := newGateway(t)
	if _, err := g.CreateSession(context.Background(), dompay.SessionRequest{
		OrderNumber: "ORD-2025-00007",
		Amount:      decimal.RequireFromString("5.00"),
		Currency:    "USD",
	}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Stripe copies payment_intent_data[metadata] onto the PaymentIntent it creates.
	number := fake.lastForm().Get("payment_intent_data[metadata][order_number]")
	if number != "ORD-2025-00007" {
		t.Fatalf("payment intent metadata order_number = %q", number)
	}

	for _, typ := range []string{"payment_intent.payment_failed", "payment_intent.canceled"} {
		payload := `{"id":"evt_pi","type":"` + typ + `","data":{"object":{
			"id":"pi_7","amount":500,"currency":"usd","metadata":{"order_number":"` + number + `"}}}}`
		evt, err := g.ParseEvent([]byte(payload))
		if err != nil {
			t.Fatalf("%s: ParseEvent() error = %v", typ, err)
		}
		if evt.OrderNumber != "ORD-2025-00007" || evt.TransactionID != "pi_7" {
			t.Errorf("%s: event = %+v", typ, evt)
		}
		if evt.Kind != dompay.KindFailed && evt.Kind != dompay.KindCancelled {
			t.Errorf("%s: kind = %q", typ, evt.Kind)
		}
	}
}

func TestCaptureSession(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)

	paid, err := g.CaptureSession(context.Background(), "cs_paid")
	if err != nil {
		t.Fatalf("CaptureSession() error = %v", err)
	}
	if paid.Kind != dompay.KindSucceeded || paid.ID != "pi_1" {
		t.Fatalf("unexpected capture %+v", paid)
	}
	if !paid.Amount.Equal(decimal.RequireFromString("12.99")) || paid.Currency != "USD" {
		t.Errorf("amount = %s %s", paid.Amount, paid.Currency)
	}
	if paid.Payer.Email != "ana@example.com" {
		t.Errorf("payer = %+v", paid.Payer)
	}

	expired, err := g.CaptureSession(context.Background(), "cs_expired")
	if err != nil {
		t.Fatalf("CaptureSession() error = %v", err)
	}
	if expired.Kind != dompay.KindCancelled {
		t.Errorf("expired session kind = %s", expired.Kind)
	}

	if _, err := g.CaptureSession(context.Background(), "cs_missing"); !errors.Is(err, apperr.ErrExternal) {
		t.Errorf("unknown session must be external, got %v", err)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name string
		sig  string
		want bool
	}{
		{"valid", Sign("whsec", payload, now), true},
		{"within tolerance", Sign("whsec", payload, now.Add(-4*time.Minute)), true},
		{"too old", Sign("whsec", payload, now.Add(-6*time.Minute)), false},
		{"wrong secret", Sign("other", payload, now), false},
		{"missing", "", false},
		{"no timestamp", "v1=abcd", false},
		{"garbage", "t=x,v1=zz", false},
	}
	for _, tt := range tests {
		if got := g.VerifyWebhookSignature(payload, tt.sig); got != tt.want {
			t.Errorf("%s: VerifyWebhookSignature() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)

	tests := []struct {
		name     string
		payload  string
		kind     dompay.Kind
		session  string
		number   string
		txn      string
		amount   string
		currency string
	}{
		{
			name: "completed and paid",
			payload: `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{
				"id":"cs_1","payment_status":"paid","payment_intent":"pi_1","client_reference_id":"ORD-2025-00001",
				"amount_total":1299,"currency":"usd"}}}`,
			kind: dompay.KindSucceeded, session: "cs_1", number: "ORD-2025-00001", txn: "pi_1", amount: "12.99", currency: "USD",
		},
		{
			name: "completed but unpaid",
			payload: `{"id":"evt_2","type":"checkout.session.completed","data":{"object":{
				"id":"cs_2","payment_status":"unpaid","metadata":{"order_number":"ORD-2025-00002"}}}}`,
			kind: dompay.KindUnknown, session: "cs_2", number: "ORD-2025-00002", txn: "cs_2", amount: "0",
		},
		{
			name:    "async failure",
			payload: `{"id":"evt_3","type":"checkout.session.async_payment_failed","data":{"object":{"id":"cs_3"}}}`,
			kind:    dompay.KindFailed, session: "cs_3", txn: "cs_3", amount: "0",
		},
		{
			name:    "expired",
			payload: `{"id":"evt_4","type":"checkout.session.expired","data":{"object":{"id":"cs_4"}}}`,
			kind:    dompay.KindCancelled, session: "cs_4", txn: "cs_4", amount: "0",
		},
		{
			name: "intent failed",
			payload: `{"id":"evt_5","type":"payment_intent.payment_failed","data":{"object":{
				"id":"pi_5","amount":500,"currency":"usd","metadata":{"order_number":"ORD-2025-00005"}}}}`,
			kind: dompay.KindFailed, number: "ORD-2025-00005", txn: "pi_5", amount: "5", currency: "USD",
		},
		{
			name:    "unrelated",
			payload: `{"id":"evt_6","type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
			kind:    dompay.KindUnknown, amount: "0",
		},
	}
	for _, tt := range tests {
		got, err := g.ParseEvent([]byte(tt.payload))
		if err != nil {
			t.Fatalf("%s: ParseEvent() error = %v", tt.name, err)
		}
		if got.Kind != tt.kind || got.SessionID != tt.session || got.OrderNumber != tt.number || got.TransactionID != tt.txn {
			t.Errorf("%s: ParseEvent() = %+v", tt.name, got)
		}
		if !got.Amount.Equal(decimal.RequireFromString(tt.amount)) || got.Currency != tt.currency {
			t.Errorf("%s: amount = %s %s, want %s %s", tt.name, got.Amount, got.Currency, tt.amount, tt.currency)
		}
	}

	if _, err := g.ParseEvent([]byte(`[]`)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("malformed payload must be a validation error, got %v", err)
	}
}
