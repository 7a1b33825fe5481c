package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

const SpanPrefix = "UC."

// Instruments holds the tracer, base logger and RED metrics shared by the
// use cases of one service.
type Instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return Instruments{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (in Instruments) Logger() observability.Logger { return in.log }

// Run tracks one use case execution. Callers set Outcome/Status as they go
// and call End from a defer.
type Run struct {
	useCase string
	start   time.Time
	span    trace.Span
	in      Instruments
	fields  []observability.Field

	Log     observability.Logger
	Outcome string
	Status  string
}

// Begin opens the use case span and binds a request-scoped logger to ctx.
func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)

	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		useCase: useCase,
		start:   time.Now(),
		span:    span,
		in:      in,
		Log:     logger,
		Outcome: "success",
		Status:  "OK",
	}
}

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run failed with a machine-readable status.
func (r *Run) Fail(status string) {
	r.Outcome, r.Status = "error", status
}

// FailErr derives the status from the error kind when the caller has no
// more specific one.
func (r *Run) FailErr(err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		r.Fail("INTERNAL")
		return
	}
	r.Fail(string(kind))
}

// Field attaches a field to the final use_case_done log line.
func (r *Run) Field(k string, v any) {
	r.fields = append(r.fields, observability.F(k, v))
}

// End closes the span, records RED metrics and writes the use_case_done line.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()

	if err != nil {
		if r.Outcome == "success" {
			r.FailErr(err)
		}
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.Status)
	} else {
		r.span.SetStatus(codes.Ok, r.Status)
	}
	r.span.End()

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.Outcome),
	)
	r.in.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.Outcome),
		observability.F("status", r.Status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	r.Log.Info("use_case_done", fields...)
}

// External records one outbound call made while serving the use case.
func (in Instruments) External(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
