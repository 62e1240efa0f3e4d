package dto

// CreateOrderRequest is the POST /orders payload.
type CreateOrderRequest struct {
	RestaurantID int64         `json:"restaurant_id"`
	TableID      int64         `json:"table_id"`
	Customer     *Customer     `json:"customer,omitempty"`
	Items        []ItemRequest `json:"items"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type ItemRequest struct {
	MenuItemID int64             `json:"menu_item_id"`
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	UnitPrice  int64             `json:"unit_price"`
	Note       string            `json:"note,omitempty"`
	Additions  []AdditionRequest `json:"additions,omitempty"`
}

// AdditionRequest carries the catalog reference plus the name and price to
// snapshot; the engine never re-reads the catalog.
type AdditionRequest struct {
	AdditionID int64  `json:"addition_id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
}

// ChangeStateRequest is the PATCH state payload for orders and items.
type ChangeStateRequest struct {
	State string `json:"state"`
	Note  string `json:"note,omitempty"`
}
