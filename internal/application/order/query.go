package order

import (
	"context"
	"math"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	domain "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderGet  = "order.get"
	useCaseOrderList = "order.list"

	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type GetOrderUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewGetOrderUseCase(repo domain.Repository, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

// Execute loads an order by its human-readable number.
func (uc *GetOrderUseCase) Execute(ctx context.Context, number string) (_ *domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderGet, "GetOrder", attribute.String("order.number", number))
	defer func() { run.End(err) }()

	if number == "" {
		run.Fail("NUMBER_REQUIRED")
		return nil, apperr.Validation("order number is required")
	}
	o, err := uc.repo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return o, nil
}

type ListOrdersInput struct {
	Page  int
	Limit int
}

type ListOrdersResult struct {
	Orders     []*domain.Order
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type ListOrdersUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewListOrdersUseCase(repo domain.Repository, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

// Execute returns one page of orders, newest first.
func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ *ListOrdersResult, err error) {
	page, limit := normalizePage(cmd.Page, cmd.Limit)
	ctx, run := uc.in.Begin(ctx, useCaseOrderList, "ListOrders",
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)
	defer func() { run.End(err) }()

	res, err := uc.repo.List(ctx, domain.Page{Number: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	run.Field("total", res.Total)

	return &ListOrdersResult{
		Orders:     res.Orders,
		Page:       page,
		Limit:      limit,
		Total:      res.Total,
		TotalPages: (res.Total + limit - 1) / limit,
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	if page > math.MaxInt32/limit {
		page = math.MaxInt32 / limit
	}
	return page, limit
}
