package order

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = apperr.NotFound("order not found")
	ErrDuplicateNumber = apperr.Conflict("order number already allocated")
	ErrStaleVersion    = apperr.Conflict("order was modified concurrently")
)

// AmountTolerance is the absolute rounding slack allowed between stored totals.
var AmountTolerance = decimal.RequireFromString("0.01")

type PaymentMethod string

const (
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentStripe         PaymentMethod = "stripe"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentPayPal, PaymentStripe, PaymentCashOnDelivery, PaymentBankTransfer:
		return true
	}
	return false
}

// Gateway reports whether the method is settled through an online payment provider.
func (m PaymentMethod) Gateway() bool {
	return m == PaymentPayPal || m == PaymentStripe
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

var phonePattern = regexp.MustCompile(`^[0-9]{8}$`)

type Customer struct {
	Name  string
	Phone string
	Email string
}

func (c Customer) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(c.Name)) < 3 {
		return apperr.Validation("customer name must have at least 3 characters")
	}
	if !phonePattern.MatchString(c.Phone) {
		return apperr.Validation("customer phone must have exactly 8 digits")
	}
	if c.Email != "" {
		addr, err := mail.ParseAddress(c.Email)
		if err != nil || addr.Address != c.Email {
			return apperr.Validation("customer email is not valid")
		}
	}
	return nil
}

// NormalizePhone strips the separators customers commonly type.
func NormalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
}

type ShippingAddress struct {
	Street       string
	Department   string
	Municipality string
	Zone         string
	Reference    string
}

func (a ShippingAddress) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(a.Street)) < 10 {
		return apperr.Validation("shipping address must have at least 10 characters")
	}
	if strings.TrimSpace(a.Department) == "" {
		return apperr.Validation("shipping department is required")
	}
	if strings.TrimSpace(a.Municipality) == "" {
		return apperr.Validation("shipping municipality is required")
	}
	if strings.TrimSpace(a.Zone) == "" {
		return apperr.Validation("shipping zone is required")
	}
	return nil
}

// Line is one product entry. Name and UnitPrice are snapshots taken when the
// order was placed and never follow later catalog edits.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

func NewLine(productID, productName string, quantity int, unitPrice decimal.Decimal) Line {
	return Line{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

func (l Line) Validate() error {
	if l.ProductID == "" {
		return apperr.Validation("line product id is required")
	}
	if l.Quantity <= 0 {
		return apperr.Validation("line %s: quantity must be greater than zero", l.ProductID)
	}
	if !l.UnitPrice.IsPositive() {
		return apperr.Validation("line %s: unit price must be greater than zero", l.ProductID)
	}
	if !IsCents(l.UnitPrice) {
		return apperr.Validation("line %s: unit price %s has more than 2 decimal places", l.ProductID, l.UnitPrice)
	}
	if !l.Subtotal.Equal(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))) {
		return apperr.Validation("line %s: subtotal does not match quantity x unit price", l.ProductID)
	}
	return nil
}

// Payment holds the provider correlation fields written by reconciliation.
type Payment struct {
	Provider  string
	SessionID string
	CaptureID string
	Status    PaymentStatus
}

// Totals are computed by the client and verified against the lines.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Draft is the unvalidated shape submitted by a customer.
type Draft struct {
	Customer      Customer
	Shipping      ShippingAddress
	PaymentMethod PaymentMethod
	Lines         []Line
	Totals        Totals
	Notes         string
}

type Order struct {
	ID            string
	Number        string
	Customer      Customer
	Shipping      ShippingAddress
	Lines         []Line
	PaymentMethod PaymentMethod
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	ShippingCost  decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	Notes         string
	Payment       Payment
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New builds a PENDING order from a draft, failing with a validation error if
// any invariant does not hold. Identity is assigned later by AssignIdentity.
func New(d Draft) (*Order, error) {
	now := time.Now().UTC()
	lines := make([]Line, len(d.Lines))
	copy(lines, d.Lines)

	o := &Order{
		Customer:      d.Customer,
		Shipping:      d.Shipping,
		Lines:         lines,
		PaymentMethod: d.PaymentMethod,
		Subtotal:      d.Totals.Subtotal,
		Tax:           d.Totals.Tax,
		ShippingCost:  d.Totals.Shipping,
		Total:         d.Totals.Total,
		Status:        StatusPending,
		Notes:         strings.TrimSpace(d.Notes),
		Payment:       Payment{Status: PaymentStatusPending},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks every structural and monetary invariant of the aggregate.
func (o *Order) Validate() error {
	if err := o.Customer.Validate(); err != nil {
		return err
	}
	if err := o.Shipping.Validate(); err != nil {
		return err
	}
	if !o.PaymentMethod.Valid() {
		return apperr.Validation("unknown payment method %q", o.PaymentMethod)
	}
	if len(o.Lines) == 0 {
		return apperr.Validation("order must have at least one line")
	}

	sum := decimal.Zero
	for _, l := range o.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
		sum = sum.Add(l.Subtotal)
	}

	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", o.Subtotal}, {"tax", o.Tax}, {"shipping", o.ShippingCost}, {"total", o.Total},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return apperr.Validation("%s must not be negative", a.name)
		}
		if !IsCents(a.value) {
			return apperr.Validation("%s %s has more than 2 decimal places", a.name, a.value)
		}
	}
	if !WithinTolerance(o.Subtotal, sum, AmountTolerance) {
		return apperr.Validation("subtotal %s does not match sum of lines %s", o.Subtotal.StringFixed(2), sum.StringFixed(2))
	}
	expected := o.Subtotal.Add(o.Tax).Add(o.ShippingCost)
	if !WithinTolerance(o.Total, expected, AmountTolerance) {
		return apperr.Validation("total %s does not match subtotal + tax + shipping %s", o.Total.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

// AssignIdentity sets the id and order number exactly once.
func (o *Order) AssignIdentity(id, number string) error {
	if o.ID != "" || o.Number != "" {
		return apperr.Conflict("order identity is already assigned")
	}
	if id == "" || number == "" {
		return apperr.Validation("order id and number are required")
	}
	o.ID = id
	o.Number = number
	return nil
}

// ProductIDs returns the distinct product ids referenced by the lines, in line order.
func (o *Order) ProductIDs() []string {
	return productIDs(o.Lines)
}

func productIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// AppendNote adds an administrator note on its own line.
func (o *Order) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if o.Notes == "" {
		o.Notes = note
	} else {
		o.Notes = fmt.Sprintf("%s\n%s", o.Notes, note)
	}
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = make([]Line, len(o.Lines))
	copy(clone.Lines, o.Lines)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// IsCents reports whether d fits 2-decimal fixed point. Trailing zeros
// ("12.500") are allowed.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
