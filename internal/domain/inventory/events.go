package inventory

import "time"

// StockDecrementedEvent is emitted after an order creation commits its stock decrement.
type StockDecrementedEvent struct {
	OrderNumber string
	ProductID   string
	Quantity    int
	Remaining   int
	OccurredAt  time.Time
}

func (StockDecrementedEvent) EventName() string { return "inventory.stock_decremented" }

func NewStockDecrementedEvent(orderNumber, productID string, quantity, remaining int) StockDecrementedEvent {
	return StockDecrementedEvent{
		OrderNumber: orderNumber,
		ProductID:   productID,
		Quantity:    quantity,
		Remaining:   remaining,
		OccurredAt:  time.Now().UTC(),
	}
}
