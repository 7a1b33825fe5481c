package httppresentation

import (
	"time"

	"github.com/shopspring/decimal"

	apporder "github.com/Zhima-Mochi/guestshop/internal/application/order"
	apppayment "github.com/Zhima-Mochi/guestshop/internal/application/payment"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
)

type customerDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type shippingDTO struct {
	Address      string `json:"address"`
	Department   string `json:"department"`
	Municipality string `json:"municipality"`
	Zone         string `json:"zone"`
	Reference    string `json:"reference,omitempty"`
}

type createOrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	Customer      customerDTO       `json:"customer"`
	Shipping      shippingDTO       `json:"shipping"`
	PaymentMethod string            `json:"payment_method"`
	Items         []createOrderItem `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Tax           decimal.Decimal   `json:"tax"`
	ShippingCost  decimal.Decimal   `json:"shipping_cost"`
	Total         decimal.Decimal   `json:"total"`
	Notes         string            `json:"notes,omitempty"`
}

func (req createOrderRequest) toInput() apporder.CreateOrderInput {
	lines := make([]apporder.CreateOrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, apporder.CreateOrderLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return apporder.CreateOrderInput{
		Customer: domorder.Customer{Name: req.Customer.Name, Phone: req.Customer.Phone, Email: req.Customer.Email},
		Shipping: domorder.ShippingAddress{
			Street:       req.Shipping.Address,
			Department:   req.Shipping.Department,
			Municipality: req.Shipping.Municipality,
			Zone:         req.Shipping.Zone,
			Reference:    req.Shipping.Reference,
		},
		PaymentMethod: req.PaymentMethod,
		Lines:         lines,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		ShippingCost:  req.ShippingCost,
		Total:         req.Total,
		Notes:         req.Notes,
	}
}

type createOrderResponse struct {
	ID            string                 `json:"id"`
	OrderNumber   string                 `json:"order_number"`
	Status        domorder.Status        `json:"status"`
	Total         decimal.Decimal        `json:"total"`
	PaymentMethod domorder.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time              `json:"created_at"`
}

type lineDTO struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type paymentDTO struct {
	Provider  string                 `json:"provider,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	CaptureID string                 `json:"capture_id,omitempty"`
	Status    domorder.PaymentStatus `json:"status"`
}

type orderResponse struct {
	ID            string                 `json:"id"`
	OrderNumber   string                 `json:"order_number"`
	Status        domorder.Status        `json:"status"`
	Customer      customerDTO            `json:"customer"`
	Shipping      shippingDTO            `json:"shipping"`
	PaymentMethod domorder.PaymentMethod `json:"payment_method"`
	Items         []lineDTO              `json:"items"`
	Subtotal      decimal.Decimal        `json:"subtotal"`
	Tax           decimal.Decimal        `json:"tax"`
	ShippingCost  decimal.Decimal        `json:"shipping_cost"`
	Total         decimal.Decimal        `json:"total"`
	Notes         string                 `json:"notes,omitempty"`
	Payment       paymentDTO             `json:"payment"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	items := make([]lineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, lineDTO{
			ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity,
			UnitPrice: l.UnitPrice, Subtotal: l.Subtotal,
		})
	}
	return orderResponse{
		ID:          o.ID,
		OrderNumber: o.Number,
		Status:      o.Status,
		Customer:    customerDTO{Name: o.Customer.Name, Phone: o.Customer.Phone, Email: o.Customer.Email},
		Shipping: shippingDTO{
			Address: o.Shipping.Street, Department: o.Shipping.Department,
			Municipality: o.Shipping.Municipality, Zone: o.Shipping.Zone, Reference: o.Shipping.Reference,
		},
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		ShippingCost:  o.ShippingCost,
		Total:         o.Total,
		Notes:         o.Notes,
		Payment: paymentDTO{
			Provider: o.Payment.Provider, SessionID: o.Payment.SessionID,
			CaptureID: o.Payment.CaptureID, Status: o.Payment.Status,
		},
		Version:   o.Version,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type listOrdersResponse struct {
	Orders     []orderResponse `json:"orders"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type createSessionRequest struct {
	OrderNumber string          `json:"order_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type createSessionResponse struct {
	SessionID   string          `json:"session_id"`
	RedirectURL string          `json:"redirect_url"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type captureRequest struct {
	SessionID string `json:"session_id"`
}

type payerDTO struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type captureResponse struct {
	CaptureID     string                 `json:"capture_id"`
	Status        string                 `json:"status"`
	Payer         payerDTO               `json:"payer"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	OrderNumber   string                 `json:"order_number"`
	OrderStatus   domorder.Status        `json:"order_status"`
	PaymentStatus domorder.PaymentStatus `json:"payment_status"`
}

func toCaptureResponse(res *apppayment.CaptureResult) captureResponse {
	return captureResponse{
		CaptureID:     res.CaptureID,
		Status:        res.Status,
		Payer:         payerDTO{ID: res.Payer.ID, Name: res.Payer.Name, Email: res.Payer.Email},
		Amount:        res.Amount,
		Currency:      res.Currency,
		OrderNumber:   res.OrderNumber,
		OrderStatus:   res.OrderStatus,
		PaymentStatus: res.PaymentStatus,
	}
}

type webhookResponse struct {
	Received bool `json:"received"`
}
