package order

import (
	"errors"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

var allStatuses = []Status{
	StatusPending, StatusConfirmed, StatusInProgress, StatusShipped, StatusDelivered, StatusCancelled,
}

func TestBackwardTransitionsRejected(t *testing.T) {
	t.Parallel()

	for i, from := range chain {
		for _, to := range chain[:i] {
			err := CheckTransition(from, to)
			if !errors.Is(err, apperr.ErrConflict) {
				t.Errorf("%s -> %s: error = %v, want conflict", from, to, err)
				continue
			}
			msg := err.Error()
			if !strings.Contains(msg, string(from)) || !strings.Contains(msg, string(to)) {
				t.Errorf("%s -> %s: message %q must name both statuses", from, to, msg)
			}
		}
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	t.Parallel()

	for _, to := range allStatuses {
		err := CheckTransition(StatusCancelled, to)
		if !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("CANCELLED -> %s: error = %v, want conflict", to, err)
		}
		if err != nil && apperr.Reason(err) != "cannot change status of a cancelled order" {
			t.Errorf("CANCELLED -> %s: reason = %q", to, apperr.Reason(err))
		}
	}
}

func TestDeliveredOnlyCancels(t *testing.T) {
	t.Parallel()

	for _, to := range allStatuses {
		err := CheckTransition(StatusDelivered, to)
		if to == StatusCancelled {
			if err != nil {
				t.Errorf("DELIVERED -> CANCELLED: error = %v", err)
			}
			continue
		}
		if !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("DELIVERED -> %s: error = %v, want conflict", to, err)
		}
	}
}

func TestTransitionMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusInProgress, true},
		{StatusInProgress, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusConfirmed, StatusShipped, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusShipped, StatusCancelled, false},
		{StatusPending, StatusPending, false},
		{StatusShipped, StatusShipped, false},
	}

	for _, tt := range tests {
		err := CheckTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: error = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}

func TestTransitionMethods(t *testing.T) {
	t.Parallel()

	o, err := New(validDraft())
	if err != nil {
		t.Fatal(err)
	}
	before := o.UpdatedAt

	steps := []func() error{o.Confirm, o.StartProcessing, o.Ship, o.Deliver, o.Cancel}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if o.Status != StatusCancelled {
		t.Fatalf("Status = %s, want CANCELLED", o.Status)
	}
	if o.UpdatedAt.Before(before) {
		t.Error("UpdatedAt must not move backwards")
	}
	if err := o.Confirm(); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Confirm() after cancel error = %v, want conflict", err)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	if s, err := ParseStatus("SHIPPED"); err != nil || s != StatusShipped {
		t.Fatalf("ParseStatus(SHIPPED) = %s, %v", s, err)
	}
	if _, err := ParseStatus("shipped"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("ParseStatus(shipped) error = %v, want validation", err)
	}
}
