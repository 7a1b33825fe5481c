package httppresentation

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Zhima-Mochi/guestshop/internal/application"
	apporder "github.com/Zhima-Mochi/guestshop/internal/application/order"
	apppayment "github.com/Zhima-Mochi/guestshop/internal/application/payment"
	domorder "github.com/Zhima-Mochi/guestshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/guestshop/internal/domain/payment"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
	"github.com/Zhima-Mochi/guestshop/internal/pkg/apperr"
)

const componentHTTPHandler = "http_server"

// UseCases are the application entry points served over HTTP.
type UseCases struct {
	CreateOrder   application.UseCase[apporder.CreateOrderInput, *apporder.CreateOrderResult]
	GetOrder      application.UseCase[string, *domorder.Order]
	ListOrders    application.UseCase[apporder.ListOrdersInput, *apporder.ListOrdersResult]
	UpdateStatus  application.UseCase[apporder.UpdateStatusInput, *domorder.Order]
	CreateSession application.UseCase[apppayment.CreateSessionInput, *apppayment.CreateSessionResult]
	Capture       application.UseCase[apppayment.CaptureInput, *apppayment.CaptureResult]
	Webhook       application.UseCase[apppayment.WebhookInput, apppayment.WebhookResult]
}

type Options struct {
	// Gateways resolve the webhook signature header per provider.
	Gateways dompay.Registry
	// Limiter throttles order creation; nil disables rate limiting.
	Limiter Limiter
	// Ready reports dependency health for /health; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	uc   UseCases
	opts Options
	log  observability.Logger
	tel  observability.Observability
}

func NewHandler(uc UseCases, opts Options, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if logger == nil {
		logger = tel.Logger()
	}
	return &Handler{
		uc:   uc,
		opts: opts,
		log:  logger.With(observability.F("component", componentHTTPHandler)),
		tel:  tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(ObservabilityMiddleware(h.log, h.tel))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.With(RateLimit(h.opts.Limiter, h.log)).Post("/", h.handleCreateOrder)
		r.Get("/", h.handleListOrders)
		r.Get("/{number}", h.handleGetOrder)
		r.Patch("/{number}/status", h.handleUpdateStatus)
	})
	r.Post("/payments/{provider}/sessions", h.handleCreateSession)
	r.Post("/payments/{provider}/capture", h.handleCapture)
	r.Post("/webhooks/{provider}", h.handleWebhook)

	return r
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.uc.CreateOrder.Execute(r.Context(), req.toInput())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.Header().Set("Location", "/orders/"+res.Number)
	writeJSON(w, http.StatusCreated, createOrderResponse{
		ID:            res.ID,
		OrderNumber:   res.Number,
		Status:        res.Status,
		Total:         res.Total,
		PaymentMethod: res.PaymentMethod,
		CreatedAt:     res.CreatedAt,
	})
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	res, err := h.uc.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out := listOrdersResponse{
		Orders:     make([]orderResponse, 0, len(res.Orders)),
		Page:       res.Page,
		Limit:      res.Limit,
		Total:      res.Total,
		TotalPages: res.TotalPages,
	}
	for _, o := range res.Orders {
		out.Orders = append(out.Orders, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.GetOrder.Execute(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	o, err := h.uc.UpdateStatus.Execute(r.Context(), apporder.UpdateStatusInput{
		Number: chi.URLParam(r, "number"),
		Status: req.Status,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.uc.CreateSession.Execute(r.Context(), apppayment.CreateSessionInput{
		Provider:    chi.URLParam(r, "provider"),
		OrderNumber: req.OrderNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   res.SessionID,
		RedirectURL: res.RedirectURL,
		Status:      res.Status,
		Amount:      res.Amount,
		Currency:    res.Currency,
	})
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.uc.Capture.Execute(r.Context(), apppayment.CaptureInput{
		Provider:  chi.URLParam(r, "provider"),
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaptureResponse(res))
}

// handleWebhook always acknowledges. Providers retry on non-2xx answers and
// must not learn why an event was rejected; the outcome is logged instead.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	ctx, logger := logctx.Enrich(r.Context(), h.log, observability.F("provider", provider))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("webhook_body_unreadable", observability.Err(err))
		writeJSON(w, http.StatusOK, webhookResponse{Received: true})
		return
	}

	var signature string
	if gw, err := h.opts.Gateways.Get(provider); err == nil {
		signature = r.Header.Get(gw.SignatureHeader())
	}

	res, err := h.uc.Webhook.Execute(ctx, apppayment.WebhookInput{
		Provider:  provider,
		Payload:   payload,
		Signature: signature,
	})
	if err != nil {
		fields := []observability.Field{
			observability.F("outcome", res.Outcome),
			observability.Err(err),
		}
		if apperr.KindOf(err) == apperr.KindSecurity {
			fields = append(fields, observability.F("security", true))
		}
		logger.Warn("webhook_not_applied", fields...)
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("health_check_failed", observability.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("query parameter %s must be an integer", name)
	}
	return v, nil
}
