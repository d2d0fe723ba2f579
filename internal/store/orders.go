package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"stepwells-backend/internal/models"
)

// reservationOrder returns the items sorted by product id. Row locks
// are always taken in the same order, so two concurrent multi-line
// orders touching the same products cannot deadlock.
func reservationOrder(items []models.OrderItem) []models.OrderItem {
	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

// CreateOrderTx persists a new order with its snapshotted items and
// decrements the stock of every involved product in one transaction.
// Each decrement is conditional on sufficient stock, so two concurrent
// orders for the same product cannot both succeed beyond what is
// available. On any shortage the whole transaction rolls back and an
// InsufficientStockError names the offending product.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, item := range reservationOrder(items) {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = NOW()
			WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var available int
			err := tx.GetContext(ctx, &available,
				"SELECT stock FROM products WHERE id = $1", item.ProductID)
			if err == sql.ErrNoRows {
				return ErrProductNotFound
			}
			if err != nil {
				return err
			}
			return &InsufficientStockError{
				ProductID: item.ProductID,
				Name:      item.Name,
				Available: available,
				Requested: item.Quantity,
			}
		}
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO orders (id, order_ref, user_id, total_amount, status, payment_method,
			ship_name, ship_address, ship_city, ship_state, ship_pincode, ship_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		order.ID, order.OrderRef, order.UserID, order.TotalAmount, order.Status,
		order.PaymentMethod, order.Name, order.Address, order.City, order.State,
		order.Pincode, order.Phone).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, unit_price, quantity, image)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.Image)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves the snapshotted items of an order.
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrdersByUser retrieves orders for a user, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrders retrieves all orders, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// TransitionOrderStatus moves an order to newStatus in one transaction.
// The current status is read under a row lock and checked against the
// transition rules, the matching timestamp is stamped, and a transition
// to cancelled restores the stock of every line item atomically with
// the status write. Either everything commits or nothing does.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID, newStatus, upiReference string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(order.Status, newStatus) {
		return nil, &IllegalTransitionError{From: order.Status, To: newStatus}
	}

	stampColumn := ""
	switch newStatus {
	case models.OrderStatusPaid:
		stampColumn = "paid_at"
	case models.OrderStatusShipped:
		stampColumn = "shipped_at"
	case models.OrderStatusDelivered:
		stampColumn = "delivered_at"
	}

	query := "UPDATE orders SET status = $2, updated_at = NOW()"
	if upiReference != "" {
		query += ", upi_reference = $3"
	}
	if stampColumn != "" {
		query += ", " + stampColumn + " = NOW()"
	}
	query += " WHERE id = $1 RETURNING *"

	var updated models.Order
	if upiReference != "" {
		err = tx.GetContext(ctx, &updated, query, orderID, newStatus, upiReference)
	} else {
		err = tx.GetContext(ctx, &updated, query, orderID, newStatus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if newStatus == models.OrderStatusCancelled {
		var items []models.OrderItem
		if err := tx.SelectContext(ctx, &items,
			"SELECT * FROM order_items WHERE order_id = $1 ORDER BY product_id", orderID); err != nil {
			return nil, err
		}
		for _, item := range items {
			_, err := tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $2, updated_at = NOW()
				WHERE id = $1`,
				item.ProductID, item.Quantity)
			if err != nil {
				return nil, fmt.Errorf("failed to restore stock: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &updated, nil
}
