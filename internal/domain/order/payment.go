package order

// OutcomePolicy decides how conflicting payment outcomes for one order resolve.
type OutcomePolicy string

const (
	// PolicyCompletedWins keeps a COMPLETED payment once recorded; later
	// failed or cancelled outcomes are reported as rejected.
	PolicyCompletedWins OutcomePolicy = "completed_wins"
	// PolicyLastWriteWins applies every outcome in arrival order.
	PolicyLastWriteWins OutcomePolicy = "last_write_wins"
)

func (p OutcomePolicy) Valid() bool {
	return p == PolicyCompletedWins || p == PolicyLastWriteWins
}

type PaymentChange int

const (
	PaymentUnchanged PaymentChange = iota
	PaymentApplied
	PaymentRejected
)

func (c PaymentChange) String() string {
	switch c {
	case PaymentApplied:
		return "applied"
	case PaymentRejected:
		return "rejected"
	default:
		return "unchanged"
	}
}

// AttachSession records the provider checkout created for this order.
func (o *Order) AttachSession(provider, sessionID string) {
	o.Payment.Provider = provider
	o.Payment.SessionID = sessionID
	if o.Payment.Status == "" {
		o.Payment.Status = PaymentStatusPending
	}
	o.touch()
}

// ApplyPayment records a payment outcome. A COMPLETED outcome also confirms
// a PENDING order; other outcomes never touch the order status.
//
// FAILED outranks CANCELLED under every policy, so the two settle on FAILED
// whichever arrives first. COMPLETED outranks both unless the policy is
// last-write-wins.
func (o *Order) ApplyPayment(status PaymentStatus, transactionID string, policy OutcomePolicy) PaymentChange {
	if policy != PolicyLastWriteWins &&
		o.Payment.Status == PaymentStatusCompleted && status != PaymentStatusCompleted {
		return PaymentRejected
	}
	if o.Payment.Status == PaymentStatusFailed && status == PaymentStatusCancelled {
		return PaymentRejected
	}

	confirm := status == PaymentStatusCompleted && o.Status == StatusPending
	sameTxn := transactionID == "" || transactionID == o.Payment.CaptureID
	if o.Payment.Status == status && sameTxn && !confirm {
		return PaymentUnchanged
	}

	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.CaptureID = transactionID
	}
	if confirm {
		o.Status = StatusConfirmed
	}
	o.touch()
	return PaymentApplied
}
