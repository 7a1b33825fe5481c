package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderUpdateStatus = "order.update_status"

type UpdateStatusInput struct {
	Number string
	Status string
	Notes  string
}

type UpdateStatusUseCase struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	in        application.Instruments
}

func NewUpdateStatusUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{
		repo:      repo,
		publisher: publisher,
		in:        application.NewInstruments(tel, orderService),
	}
}

// Execute applies an administrator status change. Concurrent modification is
// reported as a conflict rather than retried.
func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderUpdateStatus, "UpdateOrderStatus",
		attribute.String("order.number", cmd.Number),
		attribute.String("order.target_status", cmd.Status),
	)
	defer func() { run.End(err) }()

	if cmd.Number == "" {
		run.Fail("NUMBER_REQUIRED")
		return nil, apperr.Validation("order number is required")
	}
	target, err := domain.ParseStatus(cmd.Status)
	if err != nil {
		run.Fail("STATUS_INVALID")
		return nil, err
	}

	o, err := uc.repo.FindByNumber(ctx, cmd.Number)
	if err != nil {
		return nil, err
	}
	from := o.Status

	if err := o.TransitionTo(target); err != nil {
		run.Fail("TRANSITION_REJECTED")
		run.Log.Info("order_transition_rejected",
			observability.F("from", string(from)),
			observability.F("to", string(target)),
			observability.F("reason", apperr.Reason(err)),
		)
		return nil, err
	}
	o.AppendNote(cmd.Notes)

	if err := uc.repo.Update(ctx, o); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			run.Fail("STALE_VERSION")
		}
		return nil, err
	}

	run.Field("from", string(from))
	run.Field("to", string(target))

	if uc.publisher != nil {
		if perr := uc.publisher.Publish(ctx, domain.NewStatusChangedEvent(o.Number, from, target)); perr != nil {
			run.Span().RecordError(perr)
			run.Log.Warn("event_publish_failed",
				observability.F("event", domain.EventStatusChanged),
				observability.Err(perr),
			)
		}
	}
	return o, nil
}
