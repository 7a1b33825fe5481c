package order

import (
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// chain is the forward-only fulfilment path. CANCELLED sits outside it.
var chain = []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusShipped, StatusDelivered}

func (s Status) index() int {
	for i, c := range chain {
		if c == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s == StatusCancelled || s.index() >= 0
}

// ParseStatus accepts only the known status names.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", apperr.Validation("unknown order status %q", raw)
	}
	return s, nil
}

// CheckTransition reports whether an order in status from may move to status to.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return apperr.Validation("unknown order status %q", to)
	}
	if from == StatusCancelled {
		return apperr.Conflict("cannot change status of a cancelled order")
	}
	if from == to {
		return apperr.Conflict("order is already %s", from)
	}
	if to == StatusCancelled {
		switch from {
		case StatusPending, StatusConfirmed, StatusDelivered:
			return nil
		}
		return apperr.Conflict("cannot cancel an order in status %s", from)
	}
	if from == StatusDelivered {
		return apperr.Conflict("a delivered order can only be cancelled, not moved to %s", to)
	}
	if to.index() < from.index() {
		return apperr.Conflict("cannot move order back from %s to %s", from, to)
	}
	return nil
}

// TransitionTo validates and applies a status change.
func (o *Order) TransitionTo(to Status) error {
	if err := CheckTransition(o.Status, to); err != nil {
		return err
	}
	o.Status = to
	o.touch()
	return nil
}

func (o *Order) Confirm() error         { return o.TransitionTo(StatusConfirmed) }
func (o *Order) StartProcessing() error { return o.TransitionTo(StatusInProgress) }
func (o *Order) Ship() error            { return o.TransitionTo(StatusShipped) }
func (o *Order) Deliver() error         { return o.TransitionTo(StatusDelivered) }
func (o *Order) Cancel() error          { return o.TransitionTo(StatusCancelled) }
