package services

import (
	"context"
	"fmt"
	"strings"

	"menuqr/internal/order/app/core"
	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
	"menuqr/internal/realtime/events"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
)

// OrderService is the sole authority for applying order and item transitions.
// Each committed transition produces exactly one history entry (written by the
// repo in the same transaction) and one published event, in that order.
type OrderService struct {
	orderRepo core.OrderRepo
	publisher core.EventPublisher
	mets      *metrics.Registry
	mylog     *logger.Logger
}

func NewOrderService(orderRepo core.OrderRepo, publisher core.EventPublisher, mets *metrics.Registry, mylog *logger.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		publisher: publisher,
		mets:      mets,
		mylog:     mylog,
	}
}

// Create validates the request, snapshots item and addition prices, and
// persists the order. Staff-entered orders start in pending; self-service
// orders start in pending_confirmation and need an explicit Confirm.
func (s *OrderService) Create(ctx context.Context, req dto.CreateOrderRequest, actor core.Actor) (models.Order, error) {
	mylog := s.mylog.Action("create_order")

	if err := validateCreate(req); err != nil {
		return models.Order{}, err
	}

	initial := models.OrderPendingConfirmation
	if actor.IsStaff() {
		initial = models.OrderPending
	}

	order, err := s.orderRepo.Create(ctx, req, initial, actor)
	if err != nil {
		mylog.Error("Failed to create order", err)
		return models.Order{}, fmt.Errorf("cannot create order: %w", err)
	}
	s.mets.TransitionsTotal.WithLabelValues(string(initial)).Inc()

	s.emit(ctx, events.OrderCreated, order)
	mylog.Info(fmt.Sprintf("Order %s created in state %s", order.Number, order.State))
	return order, nil
}

// Advance moves the order to the single successor of its persisted state.
func (s *OrderService) Advance(ctx context.Context, orderID int64, actor core.Actor, note string) (models.Order, error) {
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.transition(ctx, orderID, actor, note, decideAdvance)
}

// Confirm authorizes a customer-placed order. It is the only way out of
// pending_confirmation and is rejected from every other state.
func (s *OrderService) Confirm(ctx context.Context, orderID int64, actor core.Actor) (models.Order, error) {
	if !actor.CanConfirm() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.transition(ctx, orderID, actor, "", decideConfirm)
}

// Cancel aborts a non-terminal order.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, actor core.Actor, reason string) (models.Order, error) {
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.transition(ctx, orderID, actor, reason, decideCancel)
}

// ChangeState serves the generic PATCH surface: the target must be either the
// table's allowed successor (advance) or cancelled (cancel).
func (s *OrderService) ChangeState(ctx context.Context, orderID int64, target string, actor core.Actor, note string) (models.Order, error) {
	state := models.OrderState(target)
	if !state.Valid() {
		return models.Order{}, core.NewValidationError("state", fmt.Sprintf("unknown state %q", target))
	}
	if state == models.OrderCancelled {
		return s.Cancel(ctx, orderID, actor, note)
	}
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.transition(ctx, orderID, actor, note, func(current models.OrderState) (models.OrderState, error) {
		next, err := decideAdvance(current)
		if err != nil {
			return "", err
		}
		if next != state {
			return "", core.ErrInvalidTransition
		}
		return next, nil
	})
}

// AdvanceItem moves one item forward, independently of the parent order. The
// parent order state is not escalated; stations progress at their own pace.
func (s *OrderService) AdvanceItem(ctx context.Context, itemID int64, actor core.Actor, note string) (models.Order, error) {
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.itemTransition(ctx, itemID, actor, note, decideAdvanceItem)
}

// CancelItem aborts a non-terminal item.
func (s *OrderService) CancelItem(ctx context.Context, itemID int64, actor core.Actor, reason string) (models.Order, error) {
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.itemTransition(ctx, itemID, actor, reason, decideCancelItem)
}

// ChangeItemState serves the generic item PATCH surface.
func (s *OrderService) ChangeItemState(ctx context.Context, itemID int64, target string, actor core.Actor, note string) (models.Order, error) {
	state := models.ItemState(target)
	if !state.Valid() {
		return models.Order{}, core.NewValidationError("state", fmt.Sprintf("unknown item state %q", target))
	}
	if state == models.ItemCancelled {
		return s.CancelItem(ctx, itemID, actor, note)
	}
	if !actor.CanTransition() {
		return models.Order{}, core.ErrRoleForbidden
	}
	return s.itemTransition(ctx, itemID, actor, note, func(current models.ItemState) (models.ItemState, error) {
		next, err := decideAdvanceItem(current)
		if err != nil {
			return "", err
		}
		if next != state {
			return "", core.ErrInvalidTransition
		}
		return next, nil
	})
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (models.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, restaurantID int64) ([]models.Order, error) {
	return s.orderRepo.List(ctx, restaurantID)
}

// GetHistory returns the audit trail for an order, newest first.
func (s *OrderService) GetHistory(ctx context.Context, orderID int64) ([]models.HistoryEntry, error) {
	return s.orderRepo.GetHistory(ctx, orderID)
}

// Delete hard-deletes an order. Admin only; the audit trail goes with it.
func (s *OrderService) Delete(ctx context.Context, orderID int64, actor core.Actor) error {
	if !actor.CanDelete() {
		return core.ErrRoleForbidden
	}
	if err := s.orderRepo.Delete(ctx, orderID); err != nil {
		return err
	}
	s.mylog.Action("delete_order").Info(fmt.Sprintf("Order %d deleted by actor %d", orderID, actor.ID))
	return nil
}

func (s *OrderService) transition(ctx context.Context, orderID int64, actor core.Actor, note string, decide func(models.OrderState) (models.OrderState, error)) (models.Order, error) {
	order, err := s.orderRepo.UpdateOrderState(ctx, orderID, decide, actor, note)
	if err != nil {
		return models.Order{}, err
	}
	s.mets.TransitionsTotal.WithLabelValues(string(order.State)).Inc()

	s.emit(ctx, events.OrderUpdated, order)
	if order.State == models.OrderReady {
		// Filtered duplicate for staff-paging consumers.
		s.emit(ctx, events.OrderReady, order)
	}
	return order, nil
}

func (s *OrderService) itemTransition(ctx context.Context, itemID int64, actor core.Actor, note string, decide func(models.ItemState) (models.ItemState, error)) (models.Order, error) {
	order, err := s.orderRepo.UpdateItemState(ctx, itemID, decide, actor, note)
	if err != nil {
		return models.Order{}, err
	}
	s.emit(ctx, events.ItemUpdated, order)
	return order, nil
}

// emit publishes after the commit is durable. Publish failure only logs: the
// channel is at-most-once and disconnected sessions reconcile via full fetch.
func (s *OrderService) emit(ctx context.Context, event string, order models.Order) {
	if err := s.publisher.Publish(ctx, event, order); err != nil {
		s.mets.PublishFailuresTotal.Inc()
		s.mylog.Action("event_publish_failed").Error(fmt.Sprintf("Failed to publish %s for order %s", event, order.Number), err)
		return
	}
	s.mets.EventsPublishedTotal.WithLabelValues(event).Inc()
}

func decideAdvance(current models.OrderState) (models.OrderState, error) {
	if current.Terminal() {
		return "", core.ErrOrderTerminal
	}
	if current == models.OrderPendingConfirmation {
		return "", core.ErrConfirmationRequired
	}
	next, ok := models.NextOrderState(current)
	if !ok {
		return "", core.ErrInvalidTransition
	}
	return next, nil
}

func decideConfirm(current models.OrderState) (models.OrderState, error) {
	if current.Terminal() {
		return "", core.ErrOrderTerminal
	}
	if current != models.OrderPendingConfirmation {
		return "", core.ErrNotAwaitingConfirmation
	}
	return models.OrderConfirmed, nil
}

func decideCancel(current models.OrderState) (models.OrderState, error) {
	if current.Terminal() {
		return "", core.ErrOrderTerminal
	}
	return models.OrderCancelled, nil
}

func decideAdvanceItem(current models.ItemState) (models.ItemState, error) {
	if current.Terminal() {
		return "", core.ErrItemTerminal
	}
	next, ok := models.NextItemState(current)
	if !ok {
		return "", core.ErrInvalidTransition
	}
	return next, nil
}

func decideCancelItem(current models.ItemState) (models.ItemState, error) {
	if current.Terminal() {
		return "", core.ErrItemTerminal
	}
	return models.ItemCancelled, nil
}

func validateCreate(req dto.CreateOrderRequest) error {
	if req.RestaurantID <= 0 {
		return core.NewValidationError("restaurant_id", "must be a positive id")
	}
	if req.TableID <= 0 {
		return core.NewValidationError("table_id", "must be a positive id")
	}
	if len(req.Items) < core.MinItems || len(req.Items) > core.MaxItems {
		return core.NewValidationError("items", fmt.Sprintf("must contain between %d and %d items", core.MinItems, core.MaxItems))
	}
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.MenuItemID <= 0 {
			return core.NewValidationError(field+".menu_item_id", "must be a positive id")
		}
		if strings.TrimSpace(item.Name) == "" || len(item.Name) > core.MaxItemNameLen {
			return core.NewValidationError(field+".name", fmt.Sprintf("must be 1..%d characters", core.MaxItemNameLen))
		}
		if item.Quantity < core.MinItemQuantity || item.Quantity > core.MaxItemQuantity {
			return core.NewValidationError(field+".quantity", fmt.Sprintf("must be in range [%d, %d]", core.MinItemQuantity, core.MaxItemQuantity))
		}
		if item.UnitPrice < 0 {
			return core.NewValidationError(field+".unit_price", "must not be negative")
		}
		if len(item.Note) > core.MaxNoteLen {
			return core.NewValidationError(field+".note", fmt.Sprintf("must not exceed %d characters", core.MaxNoteLen))
		}
		for j, add := range item.Additions {
			if add.AdditionID <= 0 {
				return core.NewValidationError(fmt.Sprintf("%s.additions[%d].addition_id", field, j), "must be a positive id")
			}
			if add.Price < 0 {
				return core.NewValidationError(fmt.Sprintf("%s.additions[%d].price", field, j), "must not be negative")
			}
		}
	}
	return nil
}
