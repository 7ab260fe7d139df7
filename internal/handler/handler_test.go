package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grocerbay/wholesale-api/internal/domain/auth"
	"github.com/grocerbay/wholesale-api/internal/domain/customer"
	"github.com/grocerbay/wholesale-api/internal/domain/offer"
	"github.com/grocerbay/wholesale-api/internal/domain/order"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type offerRepoMock struct {
	offers map[string]*offer.Offer // keyed by normalized code
	byID   map[string]*offer.Offer
}

func newOfferRepoMock(offers ...*offer.Offer) *offerRepoMock {
	m := &offerRepoMock{
		offers: make(map[string]*offer.Offer),
		byID:   make(map[string]*offer.Offer),
	}
	for _, o := range offers {
		m.offers[o.Code] = o
		m.byID[o.ID] = o
	}
	return m
}

func (m *offerRepoMock) FindActiveByCode(_ context.Context, code string) (*offer.Offer, error) {
	o, ok := m.offers[code]
	if !ok || o.Status != offer.StatusActive {
		return nil, offer.ErrInvalidCode
	}
	return o, nil
}

func (m *offerRepoMock) GetByID(_ context.Context, id string) (*offer.Offer, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, offer.ErrNotFound
	}
	return o, nil
}

func (m *offerRepoMock) List(_ context.Context) ([]offer.Offer, error) {
	out := make([]offer.Offer, 0, len(m.byID))
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (m *offerRepoMock) Create(_ context.Context, o *offer.Offer) error {
	if o.Status == "" {
		o.Status = offer.StatusActive
	}
	m.offers[o.Code] = o
	m.byID[o.ID] = o
	return nil
}

func (m *offerRepoMock) Update(_ context.Context, o *offer.Offer) error {
	if _, ok := m.byID[o.ID]; !ok {
		return offer.ErrNotFound
	}
	m.byID[o.ID] = o
	m.offers[o.Code] = o
	return nil
}

func (m *offerRepoMock) Delete(_ context.Context, id string) error {
	o, ok := m.byID[id]
	if !ok {
		return offer.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.offers, o.Code)
	return nil
}

func (m *offerRepoMock) Redeem(_ context.Context, code string, revenue decimal.Decimal) error {
	o, ok := m.offers[offer.NormalizeCode(code)]
	if !ok || (o.UsageLimit > 0 && o.UsedCount >= o.UsageLimit) {
		return offer.ErrUsageLimitReached
	}
	o.UsedCount++
	o.TotalRevenue = o.TotalRevenue.Add(revenue)
	return nil
}

func (m *offerRepoMock) ReleaseRedemption(_ context.Context, code string) error {
	if o, ok := m.offers[offer.NormalizeCode(code)]; ok && o.UsedCount > 0 {
		o.UsedCount--
	}
	return nil
}

type orderRepoMock struct {
	orders map[string]*order.Order
}

func newOrderRepoMock(orders ...*order.Order) *orderRepoMock {
	m := &orderRepoMock{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *orderRepoMock) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *orderRepoMock) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *orderRepoMock) Update(_ context.Context, o *order.Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *orderRepoMock) Delete(_ context.Context, id string) error {
	if _, ok := m.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *orderRepoMock) List(_ context.Context) ([]order.Order, error) {
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *orderRepoMock) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *orderRepoMock) Stats(_ context.Context, recentSince time.Time) (*order.Stats, error) {
	stats := &order.Stats{ByStatus: make(map[order.Status]order.StatusBucket)}
	for _, o := range m.orders {
		b := stats.ByStatus[o.Status]
		b.Count++
		b.Revenue = b.Revenue.Add(o.TotalPrice)
		stats.ByStatus[o.Status] = b
		if !o.CreatedAt.Before(recentSince) {
			stats.RecentCount++
		}
	}
	return stats, nil
}

type customerRepoMock struct {
	customers map[string]*customer.Customer
}

func (m *customerRepoMock) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (m *customerRepoMock) HasOrders(_ context.Context, _ string) (bool, error) {
	return false, nil
}

type apikeyRepoMock struct {
	hash string
}

func (m *apikeyRepoMock) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	if hash != m.hash {
		return nil, errors.New("api key not found")
	}
	return &auth.APIKey{ID: "key-1", KeyHash: m.hash, Name: "admin"}, nil
}

var testPepper = []byte("test-pepper")

const testAPIKey = "apitest-secret"

func activeOffer() *offer.Offer {
	now := time.Now()
	return &offer.Offer{
		ID:            "offer-1",
		Code:          "SAVE10",
		DiscountType:  offer.DiscountPercentage,
		DiscountValue: d("10"),
		MinPurchase:   d("20"),
		MaxDiscount:   d("15"),
		UsageLimit:    100,
		ValidFrom:     now.Add(-24 * time.Hour),
		ValidTo:       now.Add(24 * time.Hour),
		Status:        offer.StatusActive,
		ApplicableTo:  offer.ApplyAll,
	}
}

type testEnv struct {
	router http.Handler
	offers *offerRepoMock
	orders *orderRepoMock
}

func newTestEnv(t *testing.T, seedOffers []*offer.Offer, seedOrders []*order.Order) *testEnv {
	t.Helper()

	offers := newOfferRepoMock(seedOffers...)
	orders := newOrderRepoMock(seedOrders...)
	customers := &customerRepoMock{customers: map[string]*customer.Customer{
		"cust-1": {ID: "cust-1", Name: "Acme Foods", Email: "buyer@acme.test"},
	}}

	engine := offer.NewEngine(offers)
	svc := order.NewService(orders, engine, offers, zap.NewNop(), order.Config{StrictTransitions: true})

	h := New(engine, offers, svc, customers, nil)
	authn := APIKeyAuth(&apikeyRepoMock{hash: HashAPIKey(testAPIKey, testPepper)}, testPepper)

	return &testEnv{
		router: NewRouter(h, authn),
		offers: offers,
		orders: orders,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if admin {
		req.Header.Set(APIKeyHeader, testAPIKey)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestValidateOffer_Success(t *testing.T) {
	env := newTestEnv(t, []*offer.Offer{activeOffer()}, nil)

	w := env.do(t, http.MethodPost, "/api/offers/validate", map[string]any{
		"code":       "save10",
		"orderTotal": 200,
	}, false)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Valid bool `json:"valid"`
		Offer struct {
			ID             string  `json:"id"`
			Code           string  `json:"code"`
			DiscountType   string  `json:"discountType"`
			DiscountAmount float64 `json:"discountAmount"`
		} `json:"offer"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Valid)
	assert.Equal(t, "offer-1", body.Offer.ID)
	assert.Equal(t, "SAVE10", body.Offer.Code)
	assert.Equal(t, "percentage", body.Offer.DiscountType)
	// 10% of 200 capped at maxDiscount 15.
	assert.Equal(t, 15.0, body.Offer.DiscountAmount)
}

func TestValidateOffer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		total   float64
		message string
	}{
		{
			name:    "unknown code",
			code:    "NOPE",
			total:   100,
			message: "invalid offer code",
		},
		{
			name:    "below minimum purchase",
			code:    "SAVE10",
			total:   10,
			message: "minimum purchase of $20 required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, []*offer.Offer{activeOffer()}, nil)

			w := env.do(t, http.MethodPost, "/api/offers/validate", map[string]any{
				"code":       tt.code,
				"orderTotal": tt.total,
			}, false)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code)

			var body struct {
				Valid   bool   `json:"valid"`
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.False(t, body.Valid)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestValidateOffer_MissingCode(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/offers/validate", map[string]any{
		"orderTotal": 100,
	}, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func checkoutBody(offerCode string) map[string]any {
	return map[string]any{
		"customerId": "cust-1",
		"items": []map[string]any{
			{"productId": "p-1", "name": "Flour 25kg", "quantity": 2, "unitPrice": 25},
		},
		"shippingAddress": map[string]any{
			"fullName": "Acme Foods", "street": "1 Mill Rd",
			"city": "Springfield", "postalCode": "12345", "country": "US",
		},
		"paymentMethod": "invoice",
		"itemsPrice":    50,
		"taxPrice":      5,
		"shippingPrice": 10,
		"offerCode":     offerCode,
	}
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/orders", checkoutBody(""), false)

	require.Equal(t, http.StatusCreated, w.Code)

	var body orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "pending", body.Status)
	assert.Equal(t, 65.0, body.TotalPrice)
	require.NotNil(t, body.Customer)
	assert.Equal(t, "Acme Foods", body.Customer.Name)
}

func TestCreateOrder_WithOffer(t *testing.T) {
	env := newTestEnv(t, []*offer.Offer{activeOffer()}, nil)

	w := env.do(t, http.MethodPost, "/api/orders", checkoutBody("SAVE10"), false)

	require.Equal(t, http.StatusCreated, w.Code)

	var body orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	// 10% of itemsPrice 50 = 5 discount; 50+5+10-5 = 60.
	assert.Equal(t, 5.0, body.DiscountAmount)
	assert.Equal(t, 60.0, body.TotalPrice)
	assert.Equal(t, "SAVE10", body.OfferCode)
	assert.Equal(t, 1, env.offers.offers["SAVE10"].UsedCount)
}

func TestCreateOrder_InvalidOffer(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/orders", checkoutBody("NOPE"), false)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, env.orders.orders, "no order should be written on a rejected offer")
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	body := checkoutBody("")
	body["items"] = []map[string]any{}
	w := env.do(t, http.MethodPost, "/api/orders", body, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/orders/missing", nil, false)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func pendingOrder(id string) *order.Order {
	return &order.Order{
		ID:         id,
		CustomerID: "cust-1",
		Items:      []order.Item{{ProductID: "p-1", Name: "Flour 25kg", Quantity: 1, UnitPrice: d("25")}},
		ItemsPrice: d("25"), TaxPrice: d("2.50"), ShippingPrice: d("5"),
		TotalPrice: d("32.50"),
		Status:     order.StatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestTransitionOrder(t *testing.T) {
	env := newTestEnv(t, nil, []*order.Order{pendingOrder("ord-1")})

	w := env.do(t, http.MethodPut, "/api/admin/orders/ord-1/status", map[string]any{
		"status":         "processing",
		"trackingNumber": "TRK-1",
	}, true)

	require.Equal(t, http.StatusOK, w.Code)

	var body orderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "processing", body.Status)
	assert.Equal(t, "TRK-1", body.TrackingNumber)
	assert.NotNil(t, body.ProcessedAt)
}

func TestTransitionOrder_Conflict(t *testing.T) {
	env := newTestEnv(t, nil, []*order.Order{pendingOrder("ord-1")})

	w := env.do(t, http.MethodPut, "/api/admin/orders/ord-1/status", map[string]any{
		"status": "delivered",
	}, true)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTransitionOrder_UnknownStatus(t *testing.T) {
	env := newTestEnv(t, nil, []*order.Order{pendingOrder("ord-1")})

	w := env.do(t, http.MethodPut, "/api/admin/orders/ord-1/status", map[string]any{
		"status": "teleported",
	}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	env := newTestEnv(t, nil, []*order.Order{pendingOrder("ord-1")})

	w := env.do(t, http.MethodDelete, "/api/admin/orders/ord-1", nil, true)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, env.orders.orders)
}

func TestDeleteOrder_NotPending(t *testing.T) {
	o := pendingOrder("ord-1")
	o.Status = order.StatusShipped
	env := newTestEnv(t, nil, []*order.Order{o})

	w := env.do(t, http.MethodDelete, "/api/admin/orders/ord-1", nil, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderStats(t *testing.T) {
	delivered := pendingOrder("ord-2")
	delivered.Status = order.StatusDelivered
	env := newTestEnv(t, nil, []*order.Order{pendingOrder("ord-1"), delivered})

	w := env.do(t, http.MethodGet, "/api/admin/orders/stats", nil, true)

	require.Equal(t, http.StatusOK, w.Code)

	var body orderStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.ByStatus["pending"].Count)
	assert.Equal(t, 1, body.ByStatus["delivered"].Count)
	assert.Equal(t, 2, body.RecentCount)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// No key.
	w := env.do(t, http.MethodGet, "/api/admin/orders", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set(APIKeyHeader, "wrong-key")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid key.
	w = env.do(t, http.MethodGet, "/api/admin/orders", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOffer(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/admin/offers", map[string]any{
		"code":          "bulk25",
		"discountType":  "fixed",
		"discountValue": 25,
		"minPurchase":   100,
		"validFrom":     time.Now().Add(-time.Hour).Format(time.RFC3339),
		"validTo":       time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, true)

	require.Equal(t, http.StatusCreated, w.Code)

	var body offerResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "BULK25", body.Code, "code should be normalized on create")
	assert.Equal(t, "all", body.ApplicableTo)
	assert.NotEmpty(t, body.ID)
}

func TestCreateOffer_InvalidPercentage(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/admin/offers", map[string]any{
		"code":          "TOOMUCH",
		"discountType":  "percentage",
		"discountValue": 150,
		"validFrom":     time.Now().Format(time.RFC3339),
		"validTo":       time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOffer_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/api/admin/offers/missing", nil, true)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
