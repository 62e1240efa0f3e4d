package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"menuqr/internal/order/app/core"
	"menuqr/internal/order/domain/dto"
	"menuqr/internal/order/domain/models"
	"menuqr/internal/xpkg/logger"
)

// OrderRepo persists orders with pgx. Every transition runs in a transaction
// that locks the order row, validates against the persisted state, updates the
// row and appends the history entry before committing.
type OrderRepo struct {
	pool  *pgxpool.Pool
	mylog *logger.Logger
}

func NewOrderRepo(pool *pgxpool.Pool, mylog *logger.Logger) *OrderRepo {
	return &OrderRepo{pool: pool, mylog: mylog}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create retries on order number collision: two concurrent creates can count
// the same day's orders and pick the same number, which the unique index on
// (restaurant_id, number) rejects.
func (r *OrderRepo) Create(ctx context.Context, req dto.CreateOrderRequest, initial models.OrderState, actor core.Actor) (models.Order, error) {
	var order models.Order
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		order, err = r.createOnce(ctx, req, initial, actor)
		if !isUniqueViolation(err) {
			return order, err
		}
		r.mylog.Action("order_number_collision").Warn(fmt.Sprintf("Order number collision for restaurant %d, retrying", req.RestaurantID))
	}
	return models.Order{}, fmt.Errorf("failed to create order after %d attempts: %w", createAttempts, err)
}

const createAttempts = 3

func (r *OrderRepo) createOnce(ctx context.Context, req dto.CreateOrderRequest, initial models.OrderState, actor core.Actor) (models.Order, error) {
	items, total := core.BuildOrderItems(req)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := nextOrderNumber(ctx, tx, req.RestaurantID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to generate order number: %w", err)
	}

	var customerName, customerPhone *string
	if req.Customer != nil {
		customerName = &req.Customer.Name
		if req.Customer.Phone != "" {
			customerPhone = &req.Customer.Phone
		}
	}

	var assignedTo *int64
	if actor.IsStaff() {
		assignedTo = &actor.ID
	}

	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (number, restaurant_id, table_id, customer_name, customer_phone, state, total_amount, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, number, req.RestaurantID, req.TableID, customerName, customerPhone, initial, total, assignedTo).Scan(&orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		item := &items[i]
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price, subtotal, state, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, orderID, item.MenuItemID, item.Name, item.Quantity, item.UnitPrice, item.Subtotal, item.State, item.Note).Scan(&item.ID)
		if err != nil {
			return models.Order{}, fmt.Errorf("failed to insert order item: %w", err)
		}
		for _, add := range item.Additions {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_item_additions (order_item_id, addition_id, name, price)
				VALUES ($1, $2, $3, $4)
			`, item.ID, add.AdditionID, add.Name, add.Price)
			if err != nil {
				return models.Order{}, fmt.Errorf("failed to insert item addition: %w", err)
			}
		}
	}

	if err := insertHistory(ctx, tx, orderID, nil, "", string(initial), actor, ""); err != nil {
		return models.Order{}, err
	}

	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID int64) (models.Order, error) {
	return loadOrder(ctx, r.pool, orderID)
}

func (r *OrderRepo) List(ctx context.Context, restaurantID int64) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+`
		WHERE restaurant_id = $1
		ORDER BY created_at DESC, id DESC
	`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsByOrder, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepo) UpdateOrderState(ctx context.Context, orderID int64, decide func(current models.OrderState) (models.OrderState, error), actor core.Actor, note string) (models.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.OrderState
	err = tx.QueryRow(ctx, `SELECT state FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, core.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to lock order: %w", err)
	}

	next, err := decide(current)
	if err != nil {
		return models.Order{}, err
	}

	set := `state = $1, updated_at = NOW()`
	if col := milestoneColumn(next); col != "" {
		set += fmt.Sprintf(", %s = NOW()", col)
	}
	if actor.IsStaff() {
		_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE orders SET %s, assigned_to = $2 WHERE id = $3`, set), next, actor.ID, orderID)
	} else {
		_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE orders SET %s WHERE id = $2`, set), next, orderID)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to update order state: %w", err)
	}

	if err := insertHistory(ctx, tx, orderID, nil, string(current), string(next), actor, note); err != nil {
		return models.Order{}, err
	}

	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (r *OrderRepo) UpdateItemState(ctx context.Context, itemID int64, decide func(current models.ItemState) (models.ItemState, error), actor core.Actor, note string) (models.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, core.ErrItemNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to resolve item: %w", err)
	}

	// Lock parent first so item transitions serialize with order transitions.
	if _, err := tx.Exec(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID); err != nil {
		return models.Order{}, fmt.Errorf("failed to lock order: %w", err)
	}

	var current models.ItemState
	err = tx.QueryRow(ctx, `SELECT state FROM order_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, core.ErrItemNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to lock item: %w", err)
	}

	next, err := decide(current)
	if err != nil {
		return models.Order{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE order_items SET state = $1 WHERE id = $2`, next, itemID); err != nil {
		return models.Order{}, fmt.Errorf("failed to update item state: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET updated_at = NOW() WHERE id = $1`, orderID); err != nil {
		return models.Order{}, fmt.Errorf("failed to touch order: %w", err)
	}

	if err := insertHistory(ctx, tx, orderID, &itemID, string(current), string(next), actor, note); err != nil {
		return models.Order{}, err
	}

	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (r *OrderRepo) GetHistory(ctx context.Context, orderID int64) ([]models.HistoryEntry, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return nil, core.ErrOrderNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, item_id, previous_state, new_state, actor_id, actor_role, note, created_at
		FROM order_history
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ItemID, &e.PreviousState, &e.NewState, &e.ActorID, &e.ActorRole, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *OrderRepo) Delete(ctx context.Context, orderID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrOrderNotFound
	}
	return nil
}

// nextOrderNumber produces ORD_YYYYMMDD_NNN, scoped per restaurant per day.
// The label and the count come from the same query so they cannot disagree
// about which UTC day it is.
func nextOrderNumber(ctx context.Context, tx pgx.Tx, restaurantID int64) (string, error) {
	var day string
	var count int
	err := tx.QueryRow(ctx, `
		SELECT to_char(NOW() AT TIME ZONE 'utc', 'YYYYMMDD'), COUNT(*)
		FROM orders
		WHERE restaurant_id = $1
		  AND (created_at AT TIME ZONE 'utc')::DATE = (NOW() AT TIME ZONE 'utc')::DATE
	`, restaurantID).Scan(&day, &count)
	if err != nil {
		return "", err
	}
	return formatOrderNumber(day, count+1), nil
}

func formatOrderNumber(day string, seq int) string {
	return fmt.Sprintf("ORD_%s_%03d", day, seq)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID int64, itemID *int64, previous, next string, actor core.Actor, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_history (order_id, item_id, previous_state, new_state, actor_id, actor_role, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, orderID, itemID, previous, next, actor.ID, actor.Role, note)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

func milestoneColumn(state models.OrderState) string {
	switch state {
	case models.OrderConfirmed:
		return "confirmed_at"
	case models.OrderReady:
		return "ready_at"
	case models.OrderServed:
		return "served_at"
	case models.OrderCompleted:
		return "completed_at"
	case models.OrderCancelled:
		return "cancelled_at"
	}
	return ""
}

const orderSelect = `
	SELECT id, number, restaurant_id, table_id, customer_name, customer_phone, state, total_amount, assigned_to,
	       created_at, updated_at, confirmed_at, ready_at, served_at, completed_at, cancelled_at
	FROM orders
`

func scanOrder(row pgx.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Number, &o.RestaurantID, &o.TableID, &o.CustomerName, &o.CustomerPhone,
		&o.State, &o.TotalAmount, &o.AssignedTo,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.ReadyAt, &o.ServedAt, &o.CompletedAt, &o.CancelledAt)
	return o, err
}

func loadOrder(ctx context.Context, q querier, orderID int64) (models.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, orderSelect+` WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, core.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to load order: %w", err)
	}

	itemsByOrder, err := loadItems(ctx, q, []int64{orderID})
	if err != nil {
		return models.Order{}, err
	}
	order.Items = itemsByOrder[orderID]
	return order, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	result := make(map[int64][]models.OrderItem)
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price, subtotal, state, note, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var itemIDs []int64
	itemsByID := make(map[int64]*models.OrderItem)
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Name, &item.Quantity,
			&item.UnitPrice, &item.Subtotal, &item.State, &item.Note, &item.CreatedAt); err != nil {
			return nil, err
		}
		result[item.OrderID] = append(result[item.OrderID], item)
		itemIDs = append(itemIDs, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for orderID := range result {
		for i := range result[orderID] {
			itemsByID[result[orderID][i].ID] = &result[orderID][i]
		}
	}

	if len(itemIDs) == 0 {
		return result, nil
	}

	addRows, err := q.Query(ctx, `
		SELECT id, order_item_id, addition_id, name, price
		FROM order_item_additions
		WHERE order_item_id = ANY($1)
		ORDER BY order_item_id, id
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query item additions: %w", err)
	}
	defer addRows.Close()

	for addRows.Next() {
		var itemID int64
		var add models.Addition
		if err := addRows.Scan(&add.ID, &itemID, &add.AdditionID, &add.Name, &add.Price); err != nil {
			return nil, err
		}
		if item, ok := itemsByID[itemID]; ok {
			item.Additions = append(item.Additions, add)
		}
	}
	return result, addRows.Err()
}
