package listener

import (
	"sort"
	"sync"

	"menuqr/internal/order/domain/models"
	"menuqr/internal/realtime/events"
)

// View is the session's local order list. Events upsert by order id and are
// deduplicated on (id, updated_at); a full fetch replaces the snapshot.
type View struct {
	mu     sync.RWMutex
	orders map[int64]models.Order
}

func NewView() *View {
	return &View{orders: make(map[int64]models.Order)}
}

// Apply upserts the order carried by an event. Stale or duplicate snapshots
// (updated_at not newer than what the view holds, for an unchanged state) are
// dropped.
func (v *View) Apply(e events.Envelope) {
	v.mu.Lock()
	defer v.mu.Unlock()

	incoming := e.Order
	if existing, ok := v.orders[incoming.ID]; ok {
		if incoming.UpdatedAt.Before(existing.UpdatedAt) {
			return
		}
		if incoming.UpdatedAt.Equal(existing.UpdatedAt) && incoming.State == existing.State {
			return
		}
	}
	v.orders[incoming.ID] = incoming
}

// Reconcile replaces the whole snapshot with the result of a full list fetch.
// Mandatory after a reconnect: buffered event history is never trusted.
func (v *View) Reconcile(orders []models.Order) {
	next := make(map[int64]models.Order, len(orders))
	for _, o := range orders {
		next[o.ID] = o
	}

	v.mu.Lock()
	v.orders = next
	v.mu.Unlock()
}

func (v *View) Get(orderID int64) (models.Order, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	o, ok := v.orders[orderID]
	return o, ok
}

// List returns the held orders sorted by id.
func (v *View) List() []models.Order {
	v.mu.RLock()
	result := make([]models.Order, 0, len(v.orders))
	for _, o := range v.orders {
		result = append(result, o)
	}
	v.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.orders)
}
