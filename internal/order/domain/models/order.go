package models

import "time"

// Order is the aggregate root. All amounts are integer minor currency units.
type Order struct {
	ID            int64       `json:"id"`
	Number        string      `json:"number"`
	RestaurantID  int64       `json:"restaurant_id"`
	TableID       int64       `json:"table_id"`
	CustomerName  *string     `json:"customer_name,omitempty"`
	CustomerPhone *string     `json:"customer_phone,omitempty"`
	State         OrderState  `json:"state"`
	TotalAmount   int64       `json:"total_amount"`
	AssignedTo    *int64      `json:"assigned_to,omitempty"`
	Items         []OrderItem `json:"items"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	ServedAt    *time.Time `json:"served_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type OrderItem struct {
	ID         int64      `json:"id"`
	OrderID    int64      `json:"order_id"`
	MenuItemID int64      `json:"menu_item_id"`
	Name       string     `json:"name"`
	Quantity   int        `json:"quantity"`
	UnitPrice  int64      `json:"unit_price"`
	Subtotal   int64      `json:"subtotal"`
	State      ItemState  `json:"state"`
	Note       string     `json:"note,omitempty"`
	Additions  []Addition `json:"additions,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Addition is a price modifier snapshotted at order time; AdditionID points at
// the catalog entry but name and price are frozen copies.
type Addition struct {
	ID         int64  `json:"id"`
	AdditionID int64  `json:"addition_id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
}

// ComputeSubtotal returns quantity * (unit price + additions).
func (i OrderItem) ComputeSubtotal() int64 {
	unit := i.UnitPrice
	for _, a := range i.Additions {
		unit += a.Price
	}
	return int64(i.Quantity) * unit
}

// HistoryEntry is one row of the append-only audit trail. ItemID is nil for
// order-level transitions.
type HistoryEntry struct {
	ID            int64      `json:"id"`
	OrderID       int64      `json:"order_id"`
	ItemID        *int64     `json:"item_id,omitempty"`
	PreviousState string     `json:"previous_state"`
	NewState      string     `json:"new_state"`
	ActorID       int64      `json:"actor_id"`
	ActorRole     string     `json:"actor_role"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
