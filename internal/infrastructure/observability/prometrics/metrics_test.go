package prometrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/guestshop/internal/observability"
)

func TestCounterRegisteredOnce(t *testing.T) {
	t.Parallel()

	r := New("")
	a := r.Counter("payment_webhooks_total", "Webhooks received.", "provider", "outcome")
	b := r.Counter("payment_webhooks_total", "Webhooks received.", "provider", "outcome")

	a.Add(1, observability.L("provider", "stripe"), observability.L("outcome", "applied"))
	b.Bind(observability.L("provider", "stripe"), observability.L("outcome", "applied")).Add(2)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "payment_webhooks_total" {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 3 {
			t.Fatalf("counter = %v, want 3", got)
		}
		return
	}
	t.Fatal("payment_webhooks_total not gathered")
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	r := New("")
	r.Histogram("usecase_duration_seconds", "Use case latency.", nil, "use_case").
		Observe(0.2, observability.L("use_case", "CreateOrder"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `usecase_duration_seconds_count{use_case="CreateOrder"} 1`) {
		t.Fatalf("histogram missing from exposition:\n%s", rec.Body.String())
	}
}
