package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menuqr/internal/order/app/core"
	"menuqr/internal/order/app/services"
	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
)

// memRepo is a minimal in-memory OrderRepo for exercising the HTTP surface.
type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]*models.Order
	history map[int64][]models.HistoryEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:  1,
		orders:  make(map[int64]*models.Order),
		history: make(map[int64][]models.HistoryEntry),
	}
}

func (r *memRepo) Create(ctx context.Context, req dto.CreateOrderRequest, initial models.OrderState, actor core.Actor) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, total := core.BuildOrderItems(req)
	now := time.Now()
	order := models.Order{
		ID:           r.nextID,
		Number:       fmt.Sprintf("ORD_20260901_%03d", r.nextID),
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		State:        initial,
		TotalAmount:  total,
		Items:        items,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Customer != nil {
		order.CustomerName = &req.Customer.Name
	}
	for i := range order.Items {
		order.Items[i].ID = r.nextID*100 + int64(i)
		order.Items[i].OrderID = order.ID
	}
	r.nextID++
	r.orders[order.ID] = &order
	r.history[order.ID] = []models.HistoryEntry{{
		OrderID:   order.ID,
		NewState:  string(initial),
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: now,
	}}
	return order, nil
}

func (r *memRepo) GetByID(ctx context.Context, orderID int64) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return models.Order{}, core.ErrOrderNotFound
	}
	return *order, nil
}

func (r *memRepo) List(ctx context.Context, restaurantID int64) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.RestaurantID == restaurantID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateOrderState(ctx context.Context, orderID int64, decide func(models.OrderState) (models.OrderState, error), actor core.Actor, note string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return models.Order{}, core.ErrOrderNotFound
	}
	next, err := decide(order.State)
	if err != nil {
		return models.Order{}, err
	}
	prev := order.State
	order.State = next
	order.UpdatedAt = time.Now()
	r.history[orderID] = append(r.history[orderID], models.HistoryEntry{
		OrderID:       orderID,
		PreviousState: string(prev),
		NewState:      string(next),
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Note:          note,
		CreatedAt:     order.UpdatedAt,
	})
	return *order, nil
}

func (r *memRepo) UpdateItemState(ctx context.Context, itemID int64, decide func(models.ItemState) (models.ItemState, error), actor core.Actor, note string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		for i := range order.Items {
			if order.Items[i].ID != itemID {
				continue
			}
			next, err := decide(order.Items[i].State)
			if err != nil {
				return models.Order{}, err
			}
			prev := order.Items[i].State
			order.Items[i].State = next
			order.UpdatedAt = time.Now()
			id := itemID
			r.history[order.ID] = append(r.history[order.ID], models.HistoryEntry{
				OrderID:       order.ID,
				ItemID:        &id,
				PreviousState: string(prev),
				NewState:      string(next),
				ActorID:       actor.ID,
				ActorRole:     actor.Role,
				Note:          note,
				CreatedAt:     order.UpdatedAt,
			})
			return *order, nil
		}
	}
	return models.Order{}, core.ErrItemNotFound
}

func (r *memRepo) GetHistory(ctx context.Context, orderID int64) ([]models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.history[orderID]
	if !ok {
		return nil, core.ErrOrderNotFound
	}
	out := make([]models.HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return core.ErrOrderNotFound
	}
	delete(r.orders, orderID)
	delete(r.history, orderID)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event string, order models.Order) error { return nil }
func (nopPublisher) Close() error                                                        { return nil }

func newTestMux(t *testing.T) (*http.ServeMux, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	mylog := logger.NewLogger("order-service-test")
	svc := services.NewOrderService(repo, nopPublisher{}, metrics.NewRegistry(), mylog)
	h := NewOrderHandler(svc, mylog)

	mux := http.NewServeMux()
	mux.Handle("POST /orders", h.Create())
	mux.Handle("GET /orders", h.List())
	mux.Handle("GET /orders/{id}", h.Get())
	mux.Handle("PATCH /orders/{id}/state", h.ChangeState())
	mux.Handle("POST /orders/{id}/confirm", h.Confirm())
	mux.Handle("PATCH /orders/items/{itemID}/state", h.ChangeItemState())
	mux.Handle("GET /orders/{id}/history", h.History())
	mux.Handle("DELETE /orders/{id}", h.Delete())
	return mux, repo
}

func doJSON(mux *http.ServeMux, method, target, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
		req.Header.Set("X-Actor-ID", "7")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createRequest() dto.CreateOrderRequest {
	return dto.CreateOrderRequest{
		RestaurantID: 1,
		TableID:      4,
		Customer:     &dto.Customer{Name: "Aruzhan"},
		Items: []dto.ItemRequest{
			{
				MenuItemID: 10,
				Name:       "Margherita",
				Quantity:   2,
				UnitPrice:  20000,
				Additions:  []dto.AdditionRequest{{AdditionID: 3, Name: "Extra cheese", Price: 3000}},
			},
		},
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderPending, order.State)
	assert.Equal(t, int64(46000), order.TotalAmount)
	assert.NotEmpty(t, order.Number)
}

func TestCreateOrderSelfServiceStartsUnconfirmed(t *testing.T) {
	mux, _ := newTestMux(t)

	// No role header: the request is a self-service customer.
	rec := doJSON(mux, http.MethodPost, "/orders", "", createRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderPendingConfirmation, order.State)
}

func TestCreateOrderMalformedJSON(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderValidationFailure(t *testing.T) {
	mux, _ := newTestMux(t)

	bad := createRequest()
	bad.Items = nil
	rec := doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "items")
}

func TestChangeStateEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	rec := doJSON(mux, http.MethodPatch, "/orders/1/state", core.RoleStaff, dto.ChangeStateRequest{State: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderConfirmed, order.State)
}

func TestChangeStateForbiddenForCustomer(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	rec := doJSON(mux, http.MethodPatch, "/orders/1/state", "", dto.ChangeStateRequest{State: "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangeStateSkipRejected(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	// pending -> ready skips confirmed and preparing.
	rec := doJSON(mux, http.MethodPatch, "/orders/1/state", core.RoleKitchen, dto.ChangeStateRequest{State: "ready"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChangeStateUnknownOrder(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(mux, http.MethodPatch, "/orders/99/state", core.RoleStaff, dto.ChangeStateRequest{State: "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaffRequestRequiresActorID(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(dto.ChangeStateRequest{State: "confirmed"})
	req := httptest.NewRequest(http.MethodPatch, "/orders/1/state", &buf)
	req.Header.Set("X-Actor-Role", core.RoleStaff) // no X-Actor-ID
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, "/orders/1/state", strings.NewReader(`{"state":"confirmed"}`))
	req.Header.Set("X-Actor-Role", core.RoleKitchen)
	req.Header.Set("X-Actor-ID", "not-a-number")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Self-service customers carry no actor id and stay accepted.
	rec = doJSON(mux, http.MethodPost, "/orders", "", createRequest())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestChangeStateBadID(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(mux, http.MethodPatch, "/orders/abc/state", core.RoleStaff, dto.ChangeStateRequest{State: "confirmed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", "", createRequest()) // self-service

	rec := doJSON(mux, http.MethodPost, "/orders/1/confirm", core.RoleStaff, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderConfirmed, order.State)

	// Confirming twice conflicts.
	rec = doJSON(mux, http.MethodPost, "/orders/1/confirm", core.RoleStaff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmForbiddenForKitchen(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", "", createRequest())

	rec := doJSON(mux, http.MethodPost, "/orders/1/confirm", core.RoleKitchen, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangeItemStateEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.NotEmpty(t, order.Items)
	itemID := order.Items[0].ID

	rec = doJSON(mux, http.MethodPatch, fmt.Sprintf("/orders/items/%d/state", itemID), core.RoleKitchen, dto.ChangeStateRequest{State: "preparing"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.ItemPreparing, updated.Items[0].State)
	// The order itself does not move when an item does.
	assert.Equal(t, models.OrderPending, updated.State)
}

func TestHistoryEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())
	doJSON(mux, http.MethodPatch, "/orders/1/state", core.RoleStaff, dto.ChangeStateRequest{State: "confirmed", Note: "verified at counter"})

	rec := doJSON(mux, http.MethodGet, "/orders/1/history", core.RoleStaff, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []models.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
}

func TestListEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(mux, http.MethodGet, "/orders?restaurant_id=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())
	rec = doJSON(mux, http.MethodGet, "/orders?restaurant_id=1", "", nil)
	var orders []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)

	rec = doJSON(mux, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEndpoint(t *testing.T) {
	mux, _ := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	rec := doJSON(mux, http.MethodGet, "/orders/1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(mux, http.MethodGet, "/orders/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	mux, repo := newTestMux(t)
	doJSON(mux, http.MethodPost, "/orders", core.RoleStaff, createRequest())

	rec := doJSON(mux, http.MethodDelete, "/orders/1", core.RoleStaff, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(mux, http.MethodDelete, "/orders/1", core.RoleAdmin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := repo.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}
