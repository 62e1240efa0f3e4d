package core

import (
	"context"

	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
)

// OrderRepo is the persistence port. Transition methods take a decide
// callback that the repository runs against the persisted current state while
// holding the per-order lock, so a stale client-side view can never commit an
// illegal transition. The state change and its history entry commit in one
// transaction.
type OrderRepo interface {
	Create(ctx context.Context, req dto.CreateOrderRequest, initial models.OrderState, actor Actor) (models.Order, error)
	GetByID(ctx context.Context, orderID int64) (models.Order, error)
	List(ctx context.Context, restaurantID int64) ([]models.Order, error)
	UpdateOrderState(ctx context.Context, orderID int64, decide func(current models.OrderState) (models.OrderState, error), actor Actor, note string) (models.Order, error)
	UpdateItemState(ctx context.Context, itemID int64, decide func(current models.ItemState) (models.ItemState, error), actor Actor, note string) (models.Order, error)
	GetHistory(ctx context.Context, orderID int64) ([]models.HistoryEntry, error)
	Delete(ctx context.Context, orderID int64) error
}

// EventPublisher broadcasts a committed change on the restaurant channel.
// Delivery is at-most-once; a failed publish is logged, never rolled back.
type EventPublisher interface {
	Publish(ctx context.Context, event string, order models.Order) error
	Close() error
}
