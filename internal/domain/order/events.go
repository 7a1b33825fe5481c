package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCreated        = "order.created"
	EventStatusChanged  = "order.status_changed"
	EventPaymentUpdated = "order.payment_updated"
)

type CreatedEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         int             `json:"items"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (CreatedEvent) EventName() string { return EventCreated }
func (e CreatedEvent) Key() string     { return e.OrderNumber }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Items:         len(o.Lines),
		OccurredAt:    time.Now().UTC(),
	}
}

type StatusChangedEvent struct {
	OrderNumber string    `json:"order_number"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }
func (e StatusChangedEvent) Key() string     { return e.OrderNumber }

func NewStatusChangedEvent(number string, from, to Status) StatusChangedEvent {
	return StatusChangedEvent{OrderNumber: number, From: from, To: to, OccurredAt: time.Now().UTC()}
}

type PaymentUpdatedEvent struct {
	OrderNumber   string        `json:"order_number"`
	Provider      string        `json:"provider"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OrderStatus   Status        `json:"order_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func (PaymentUpdatedEvent) EventName() string { return EventPaymentUpdated }
func (e PaymentUpdatedEvent) Key() string     { return e.OrderNumber }

func NewPaymentUpdatedEvent(o *Order) PaymentUpdatedEvent {
	return PaymentUpdatedEvent{
		OrderNumber:   o.Number,
		Provider:      o.Payment.Provider,
		PaymentStatus: o.Payment.Status,
		OrderStatus:   o.Status,
		TransactionID: o.Payment.CaptureID,
		OccurredAt:    time.Now().UTC(),
	}
}
