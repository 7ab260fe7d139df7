package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grocerbay/wholesale-api/internal/domain/customer"
	"github.com/grocerbay/wholesale-api/internal/domain/offer"
	"github.com/grocerbay/wholesale-api/internal/domain/order"
)

type createOrderRequest struct {
	CustomerID      string          `json:"customerId"`
	Items           []order.Item    `json:"items"`
	ShippingAddress order.Address   `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	OfferCode       string          `json:"offerCode"`
}

type transitionOrderRequest struct {
	Status         *string `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
	Notes          *string `json:"notes"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderCustomerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	CustomerID      string                 `json:"customerId"`
	Customer        *orderCustomerResponse `json:"customer,omitempty"`
	Items           []orderItemResponse    `json:"items"`
	ShippingAddress order.Address          `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ItemsPrice      float64                `json:"itemsPrice"`
	TaxPrice        float64                `json:"taxPrice"`
	ShippingPrice   float64                `json:"shippingPrice"`
	DiscountAmount  float64                `json:"discountAmount"`
	TotalPrice      float64                `json:"totalPrice"`
	OfferCode       string                 `json:"offerCode,omitempty"`
	Status          string                 `json:"status"`
	TrackingNumber  string                 `json:"trackingNumber,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	ProcessedAt     *time.Time             `json:"processedAt,omitempty"`
	ShippedAt       *time.Time             `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time             `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time             `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func toOrderResponse(o *order.Order, cust *customer.Customer) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
		}
	}

	resp := orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		ItemsPrice:      o.ItemsPrice.InexactFloat64(),
		TaxPrice:        o.TaxPrice.InexactFloat64(),
		ShippingPrice:   o.ShippingPrice.InexactFloat64(),
		DiscountAmount:  o.DiscountAmount.InexactFloat64(),
		TotalPrice:      o.TotalPrice.InexactFloat64(),
		OfferCode:       o.OfferCode,
		Status:          string(o.Status),
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		ProcessedAt:     o.ProcessedAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if cust != nil {
		resp.Customer = &orderCustomerResponse{ID: cust.ID, Name: cust.Name, Email: cust.Email}
	}
	return resp
}

// customerFor resolves the customer identity for an order view. Lookup
// failures leave the view without the identity rather than failing the read.
func (h *Handler) customerFor(ctx context.Context, id string) *customer.Customer {
	if id == "" || h.customers == nil {
		return nil
	}
	c, err := h.customers.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return c
}

// CreateOrder places an order from the cart snapshot, redeeming the supplied
// offer code if any.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID:      req.CustomerID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Pricing: order.Pricing{
			ItemsPrice:    req.ItemsPrice,
			TaxPrice:      req.TaxPrice,
			ShippingPrice: req.ShippingPrice,
		},
		OfferCode: req.OfferCode,
	})
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toOrderResponse(o, h.customerFor(r.Context(), o.CustomerID)))
}

// GetOrder fetches a single order with the customer identity populated.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o, h.customerFor(r.Context(), o.CustomerID)))
}

// ListOrders returns all orders, newest first, with customer identities.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toOrderResponses(r.Context(), orders))
}

// ListCustomerOrders returns one customer's orders, newest first.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toOrderResponses(r.Context(), orders))
}

func (h *Handler) toOrderResponses(ctx context.Context, orders []order.Order) []orderResponse {
	// One lookup per distinct customer across the page.
	customers := make(map[string]*customer.Customer)
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		id := orders[i].CustomerID
		c, ok := customers[id]
		if !ok {
			c = h.customerFor(ctx, id)
			customers[id] = c
		}
		resp[i] = toOrderResponse(&orders[i], c)
	}
	return resp
}

// TransitionOrder applies an admin lifecycle mutation: status change and/or
// tracking/notes updates.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	treq := order.TransitionRequest{
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
	}
	if req.Status != nil {
		status := order.Status(*req.Status)
		treq.Status = &status
	}

	o, err := h.orders.Transition(r.Context(), chi.URLParam(r, "id"), treq)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o, h.customerFor(r.Context(), o.CustomerID)))
}

// DeleteOrder removes a pending order, releasing any offer redemption.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.orderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusBucketResponse struct {
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

type orderStatsResponse struct {
	ByStatus    map[string]statusBucketResponse `json:"byStatus"`
	RecentCount int                             `json:"recentCount"`
}

// OrderStats reports per-status order counts and revenue plus the rolling
// recent-order count.
func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	resp := orderStatsResponse{
		ByStatus:    make(map[string]statusBucketResponse, len(stats.ByStatus)),
		RecentCount: stats.RecentCount,
	}
	for status, bucket := range stats.ByStatus {
		resp.ByStatus[string(status)] = statusBucketResponse{
			Count:   bucket.Count,
			Revenue: bucket.Revenue.InexactFloat64(),
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// orderError maps order service errors onto the API error taxonomy:
// not-found 404, business rejections 422, invariant violations 400,
// transition conflicts 409, everything else 500.
func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		itErr *order.InvalidTransitionError
		mpErr *offer.MinPurchaseError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, order.ErrNotFound.Error())
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNotDeletable),
		errors.Is(err, order.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &itErr):
		writeError(w, r, http.StatusConflict, itErr.Error())
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.Is(err, offer.ErrInvalidCode),
		errors.Is(err, offer.ErrNotCurrentlyValid),
		errors.Is(err, offer.ErrUsageLimitReached),
		errors.Is(err, offer.ErrNotEligible),
		errors.As(err, &mpErr):
		status, msg, _ := offerRejection(err)
		writeError(w, r, status, msg)
	default:
		zctx.From(r.Context()).Error("order operation failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
