package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grocerbay/wholesale-api/internal/domain/offer"
)

type validateOfferRequest struct {
	Code       string          `json:"code"`
	CustomerID string          `json:"customerId"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

// ValidateOffer prices a promotional code against a candidate order. The
// response is encoded with jx: checkout flows re-price carts on every change,
// making this the hottest endpoint in the API.
func (h *Handler) ValidateOffer(w http.ResponseWriter, r *http.Request) {
	var req validateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	var e jx.Encoder
	res, err := h.engine.Validate(r.Context(), req.Code, req.CustomerID, req.OrderTotal)
	if err != nil {
		status, msg, label := offerRejection(err)
		h.metrics.RecordValidation(r.Context(), label)
		if status == http.StatusInternalServerError {
			zctx.From(r.Context()).Error("offer validation failed", zap.Error(err))
			msg = "internal error"
		}
		writeRaw(w, status, encodeValidationFailure(&e, status, msg))
		return
	}

	h.metrics.RecordValidation(r.Context(), "accepted")
	writeRaw(w, http.StatusOK, encodeValidationSuccess(&e,
		res.OfferID, res.Code, string(res.DiscountType),
		res.DiscountValue.InexactFloat64(),
		res.DiscountAmount.InexactFloat64(),
		res.MaxDiscount.InexactFloat64(),
	))
}

// offerRejection maps an engine error to an HTTP status, a user-facing
// message, and a low-cardinality metric label.
func offerRejection(err error) (status int, msg, label string) {
	// Wrapped errors carry caller context not meant for clients, so the
	// message comes from the matched sentinel rather than err.Error().
	var mpErr *offer.MinPurchaseError
	switch {
	case errors.Is(err, offer.ErrInvalidCode):
		return http.StatusUnprocessableEntity, offer.ErrInvalidCode.Error(), "invalid_code"
	case errors.Is(err, offer.ErrNotCurrentlyValid):
		return http.StatusUnprocessableEntity, offer.ErrNotCurrentlyValid.Error(), "not_currently_valid"
	case errors.Is(err, offer.ErrUsageLimitReached):
		return http.StatusUnprocessableEntity, offer.ErrUsageLimitReached.Error(), "usage_limit_reached"
	case errors.Is(err, offer.ErrNotEligible):
		return http.StatusUnprocessableEntity, offer.ErrNotEligible.Error(), "not_eligible"
	case errors.As(err, &mpErr):
		return http.StatusUnprocessableEntity, mpErr.Error(), "min_purchase"
	}
	return http.StatusInternalServerError, err.Error(), "error"
}

type offerRequest struct {
	Code              string          `json:"code"`
	Description       string          `json:"description"`
	DiscountType      string          `json:"discountType"`
	DiscountValue     decimal.Decimal `json:"discountValue"`
	MinPurchase       decimal.Decimal `json:"minPurchase"`
	MaxDiscount       decimal.Decimal `json:"maxDiscount"`
	UsageLimit        int             `json:"usageLimit"`
	ValidFrom         time.Time       `json:"validFrom"`
	ValidTo           time.Time       `json:"validTo"`
	Disabled          bool            `json:"disabled"`
	ApplicableTo      string          `json:"applicableTo"`
	SpecificCustomers []string        `json:"specificCustomers"`
}

type offerResponse struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	Description       string    `json:"description"`
	DiscountType      string    `json:"discountType"`
	DiscountValue     float64   `json:"discountValue"`
	MinPurchase       float64   `json:"minPurchase"`
	MaxDiscount       float64   `json:"maxDiscount"`
	UsageLimit        int       `json:"usageLimit"`
	UsedCount         int       `json:"usedCount"`
	ValidFrom         time.Time `json:"validFrom"`
	ValidTo           time.Time `json:"validTo"`
	Status            string    `json:"status"`
	ApplicableTo      string    `json:"applicableTo"`
	SpecificCustomers []string  `json:"specificCustomers,omitempty"`
	TotalRevenue      float64   `json:"totalRevenue"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toOfferResponse(o *offer.Offer) offerResponse {
	return offerResponse{
		ID:                o.ID,
		Code:              o.Code,
		Description:       o.Description,
		DiscountType:      string(o.DiscountType),
		DiscountValue:     o.DiscountValue.InexactFloat64(),
		MinPurchase:       o.MinPurchase.InexactFloat64(),
		MaxDiscount:       o.MaxDiscount.InexactFloat64(),
		UsageLimit:        o.UsageLimit,
		UsedCount:         o.UsedCount,
		ValidFrom:         o.ValidFrom,
		ValidTo:           o.ValidTo,
		Status:            string(o.Status),
		ApplicableTo:      string(o.ApplicableTo),
		SpecificCustomers: o.SpecificCustomers,
		TotalRevenue:      o.TotalRevenue.InexactFloat64(),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func (req *offerRequest) toDomain(id string, now time.Time) *offer.Offer {
	applicableTo := offer.ApplicableTo(req.ApplicableTo)
	if req.ApplicableTo == "" {
		applicableTo = offer.ApplyAll
	}
	o := &offer.Offer{
		ID:                id,
		Code:              offer.NormalizeCode(req.Code),
		Description:       req.Description,
		DiscountType:      offer.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		MinPurchase:       req.MinPurchase,
		MaxDiscount:       req.MaxDiscount,
		UsageLimit:        req.UsageLimit,
		ValidFrom:         req.ValidFrom,
		ValidTo:           req.ValidTo,
		ApplicableTo:      applicableTo,
		SpecificCustomers: req.SpecificCustomers,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Disabled {
		o.Status = offer.StatusDisabled
	}
	return o
}

// CreateOffer registers a new promotional offer.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	o := req.toDomain(uuid.New().String(), time.Now())
	if err := o.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.offers.Create(r.Context(), o); err != nil {
		h.offerStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOfferResponse(o))
}

// GetOffer fetches a single offer for administrative use.
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.offers.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.offerStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOfferResponse(o))
}

// ListOffers returns all offers, newest first.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.List(r.Context())
	if err != nil {
		h.offerStorageError(w, r, err)
		return
	}
	resp := make([]offerResponse, len(offers))
	for i := range offers {
		resp[i] = toOfferResponse(&offers[i])
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// UpdateOffer replaces an offer's definition. The usage counter and revenue
// are owned by the redemption path and are not touched here.
func (h *Handler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	o := req.toDomain(chi.URLParam(r, "id"), time.Now())
	if err := o.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.offers.Update(r.Context(), o); err != nil {
		h.offerStorageError(w, r, err)
		return
	}

	// Re-read so the response carries the fields the update does not own.
	updated, err := h.offers.GetByID(r.Context(), o.ID)
	if err != nil {
		h.offerStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOfferResponse(updated))
}

// DeleteOffer removes an offer.
func (h *Handler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	if err := h.offers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.offerStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) offerStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, offer.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, offer.ErrNotFound.Error())
		return
	}
	zctx.From(r.Context()).Error("offer storage failure", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
