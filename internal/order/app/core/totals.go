package core

import (
	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
)

// BuildOrderItems snapshots a create request into item models with computed
// subtotals and returns the order total. Prices are frozen here; the engine
// never re-reads the catalog after this point.
func BuildOrderItems(req dto.CreateOrderRequest) ([]models.OrderItem, int64) {
	items := make([]models.OrderItem, 0, len(req.Items))
	var total int64
	for _, ir := range req.Items {
		item := models.OrderItem{
			MenuItemID: ir.MenuItemID,
			Name:       ir.Name,
			Quantity:   ir.Quantity,
			UnitPrice:  ir.UnitPrice,
			State:      models.ItemPending,
			Note:       ir.Note,
		}
		for _, ar := range ir.Additions {
			item.Additions = append(item.Additions, models.Addition{
				AdditionID: ar.AdditionID,
				Name:       ar.Name,
				Price:      ar.Price,
			})
		}
		item.Subtotal = item.ComputeSubtotal()
		total += item.Subtotal
		items = append(items, item)
	}
	return items, total
}
