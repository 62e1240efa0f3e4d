package models

import "math"

// OrderState is the order-level lifecycle state.
type OrderState string

const (
	// OrderPendingConfirmation is the entry state for self-service orders:
	// a customer placed the order and staff have not reviewed it yet.
	OrderPendingConfirmation OrderState = "pending_confirmation"
	// OrderPending is the entry state for staff-entered orders.
	OrderPending   OrderState = "pending"
	OrderConfirmed OrderState = "confirmed"
	OrderPreparing OrderState = "preparing"
	OrderReady     OrderState = "ready"
	OrderServed    OrderState = "served"
	OrderCompleted OrderState = "completed"
	OrderCancelled OrderState = "cancelled"
)

// orderPipeline is the display pipeline used for progress percentages. An
// unreviewed self-service order sits one step behind an accepted staff order.
var orderPipeline = [...]OrderState{
	OrderPendingConfirmation,
	OrderPending,
	OrderConfirmed,
	OrderPreparing,
	OrderReady,
	OrderServed,
	OrderCompleted,
}

// orderNext is the transition table for Advance: every non-terminal state has
// exactly one pipeline successor. OrderPendingConfirmation is deliberately
// absent; leaving it requires the explicit Confirm operation.
var orderNext = map[OrderState]OrderState{
	OrderPending:   OrderConfirmed,
	OrderConfirmed: OrderPreparing,
	OrderPreparing: OrderReady,
	OrderReady:     OrderServed,
	OrderServed:    OrderCompleted,
}

func (s OrderState) Valid() bool {
	switch s {
	case OrderPendingConfirmation, OrderPending, OrderConfirmed, OrderPreparing,
		OrderReady, OrderServed, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// NextOrderState returns the single Advance successor of s. ok is false for
// terminal states and for OrderPendingConfirmation.
func NextOrderState(s OrderState) (OrderState, bool) {
	next, ok := orderNext[s]
	return next, ok
}

// Progress returns the percent-complete of s along the display pipeline,
// rounded to the nearest integer. Cancelled orders report 0.
func (s OrderState) Progress() int {
	for i, ps := range orderPipeline {
		if ps == s {
			return int(math.Round(float64(i+1) / float64(len(orderPipeline)) * 100))
		}
	}
	return 0
}

// ItemState is the per-item lifecycle state, independent of the order's.
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemPreparing ItemState = "preparing"
	ItemReady     ItemState = "ready"
	ItemServed    ItemState = "served"
	ItemCancelled ItemState = "cancelled"
)

var itemNext = map[ItemState]ItemState{
	ItemPending:   ItemPreparing,
	ItemPreparing: ItemReady,
	ItemReady:     ItemServed,
}

func (s ItemState) Valid() bool {
	switch s {
	case ItemPending, ItemPreparing, ItemReady, ItemServed, ItemCancelled:
		return true
	}
	return false
}

func (s ItemState) Terminal() bool {
	return s == ItemServed || s == ItemCancelled
}

// NextItemState returns the single Advance successor of s; ok is false for
// terminal item states.
func NextItemState(s ItemState) (ItemState, bool) {
	next, ok := itemNext[s]
	return next, ok
}
