// Package events defines the wire format shared by the engine-side publisher
// and the session-side listener stack.
package events

import (
	"fmt"
	"time"

	"menuqr/internal/order/domain/models"
)

const (
	OrderCreated = "order.created"
	OrderUpdated = "order.updated"
	ItemUpdated  = "item.updated"
	OrderReady   = "order.ready"
)

// Envelope is the JSON body published on the restaurant channel. Every event
// carries the full order snapshot; consumers upsert by order id.
type Envelope struct {
	Event        string       `json:"event"`
	RestaurantID int64        `json:"restaurant_id"`
	Order        models.Order `json:"order"`
	EmittedAt    time.Time    `json:"emitted_at"`
}

// RoutingKey scopes an event to its restaurant channel on the topic exchange.
func RoutingKey(restaurantID int64, event string) string {
	return fmt.Sprintf("restaurant.%d.%s", restaurantID, event)
}

// BindingKey matches every event on a restaurant's channel.
func BindingKey(restaurantID int64) string {
	return fmt.Sprintf("restaurant.%d.#", restaurantID)
}
