package handle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"menuqr/internal/order/app/core"
	"menuqr/internal/order/app/services"
	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
	"menuqr/internal/xpkg/logger"
)

type OrderHandler struct {
	orderService *services.OrderService
	mylog        *logger.Logger
}

func NewOrderHandler(orderService *services.OrderService, mylog *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		mylog:        mylog,
	}
}

func (oh *OrderHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		mylog := oh.mylog.WithRequestID(requestID).Action("create_order")

		var req dto.CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			mylog.Error("Invalid JSON payload", err)
			jsonError(w, http.StatusBadRequest, core.NewValidationError("body", "malformed JSON"))
			return
		}

		actor, err := actorFrom(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		order, err := oh.orderService.Create(ctx, req, actor)
		if err != nil {
			mylog.Error("Failed to create order", err)
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusCreated, order)
	}
}

func (oh *OrderHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restaurantID, err := strconv.ParseInt(r.URL.Query().Get("restaurant_id"), 10, 64)
		if err != nil || restaurantID <= 0 {
			jsonError(w, http.StatusBadRequest, core.NewValidationError("restaurant_id", "must be a positive id"))
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		orders, err := oh.orderService.ListOrders(ctx, restaurantID)
		if err != nil {
			oh.mylog.Action("list_orders").Error("Failed to list orders", err)
			jsonError(w, statusFor(err), err)
			return
		}
		if orders == nil {
			orders = []models.Order{}
		}
		jsonResponse(w, http.StatusOK, orders)
	}
}

func (oh *OrderHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		order, err := oh.orderService.GetOrder(ctx, orderID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) ChangeState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		mylog := oh.mylog.WithRequestID(requestID).Action("change_order_state")

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		var req dto.ChangeStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, core.NewValidationError("body", "malformed JSON"))
			return
		}

		actor, err := actorFrom(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		order, err := oh.orderService.ChangeState(ctx, orderID, req.State, actor, req.Note)
		if err != nil {
			mylog.Error(fmt.Sprintf("Failed to change state of order %d", orderID), err)
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) Confirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		mylog := oh.mylog.WithRequestID(requestID).Action("confirm_order")

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		actor, err := actorFrom(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		order, err := oh.orderService.Confirm(ctx, orderID, actor)
		if err != nil {
			mylog.Error(fmt.Sprintf("Failed to confirm order %d", orderID), err)
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) ChangeItemState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		mylog := oh.mylog.WithRequestID(requestID).Action("change_item_state")

		itemID, err := pathID(r, "itemID")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		var req dto.ChangeStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, core.NewValidationError("body", "malformed JSON"))
			return
		}

		actor, err := actorFrom(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		order, err := oh.orderService.ChangeItemState(ctx, itemID, req.State, actor, req.Note)
		if err != nil {
			mylog.Error(fmt.Sprintf("Failed to change state of item %d", itemID), err)
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		entries, err := oh.orderService.GetHistory(ctx, orderID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		jsonResponse(w, http.StatusOK, entries)
	}
}

func (oh *OrderHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		mylog := oh.mylog.WithRequestID(requestID).Action("delete_order")

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		actor, err := actorFrom(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		if err := oh.orderService.Delete(ctx, orderID, actor); err != nil {
			mylog.Error(fmt.Sprintf("Failed to delete order %d", orderID), err)
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusNoContent, nil)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(name, "must be a positive id")
	}
	return id, nil
}

// actorFrom reads the identity the auth collaborator attached upstream.
// Requests without a role are treated as self-service customers. Staff roles
// must carry a parseable actor id, otherwise the audit trail would record
// actor 0.
func actorFrom(r *http.Request) (core.Actor, error) {
	role := r.Header.Get("X-Actor-Role")
	if role == "" {
		role = core.RoleCustomer
	}
	actorID, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	actor := core.Actor{ID: actorID, Role: role}
	if actor.IsStaff() && (err != nil || actorID <= 0) {
		return core.Actor{}, core.NewValidationError("X-Actor-ID", "must be a positive id for staff roles")
	}
	return actor, nil
}

func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), core.WaitTime*time.Second)
}
