package inventory

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecordDeduct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stock     int
		quantity  int
		wantErr   error
		wantStock int
	}{
		{name: "partial", stock: 5, quantity: 2, wantStock: 3},
		{name: "exact", stock: 1, quantity: 1, wantStock: 0},
		{name: "insufficient", stock: 1, quantity: 2, wantErr: ErrInsufficientStock, wantStock: 1},
		{name: "zero quantity", stock: 3, quantity: 0, wantErr: ErrInvalidQuantity, wantStock: 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := NewRecord("P1", "Trout", decimal.NewFromInt(100), tt.stock)
			if err != nil {
				t.Fatalf("NewRecord() error = %v", err)
			}
			err = rec.Deduct(tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deduct() error = %v, want %v", err, tt.wantErr)
			}
			if rec.Stock != tt.wantStock {
				t.Errorf("Stock = %d, want %d", rec.Stock, tt.wantStock)
			}
		})
	}
}

func TestNewRecordRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := NewRecord("P1", "Trout", decimal.Zero, 1); err == nil {
		t.Error("expected error for zero price")
	}
	if _, err := NewRecord("P1", "Trout", decimal.NewFromInt(1), -1); err == nil {
		t.Error("expected error for negative stock")
	}
	if _, err := NewRecord("P1", "Trout", decimal.RequireFromString("9.995"), 1); err == nil {
		t.Error("expected error for sub-cent price")
	}
}
