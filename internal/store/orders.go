package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/farmstand/internal/database"
	"github.com/safar/farmstand/internal/models"
)

func generateOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

const orderColumns = `
	o.id, o.order_number, o.consumer_id, o.guest_name, o.guest_email, o.shipping_address,
	o.status, o.payment_status, o.total_amount, o.currency,
	o.payment_transaction_id, o.payment_processor, o.payment_token, o.payment_display,
	o.paid_at, o.refund_amount, o.refunded_at, o.last_payment_event_at,
	o.notes, o.created_at, o.updated_at, o.version`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	var (
		consumerID                   sql.NullInt64
		guestName, guestEmail        sql.NullString
		transactionID, processor     sql.NullString
		token                        sql.NullString
		shipping, display            []byte
		paidAt, refundedAt, lastSeen sql.NullTime
	)

	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&consumerID,
		&guestName,
		&guestEmail,
		&shipping,
		&o.Status,
		&o.PaymentStatus,
		&o.TotalAmount,
		&o.Currency,
		&transactionID,
		&processor,
		&token,
		&display,
		&paidAt,
		&o.Payment.RefundAmount,
		&refundedAt,
		&lastSeen,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}

	if consumerID.Valid {
		id := consumerID.Int64
		o.ConsumerID = &id
	}
	if guestEmail.Valid {
		o.Guest = &models.Contact{Name: guestName.String, Email: guestEmail.String}
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(display) > 0 {
		o.Payment.MethodSnapshot = &models.PaymentMethodSnapshot{}
		if err := json.Unmarshal(display, o.Payment.MethodSnapshot); err != nil {
			return nil, fmt.Errorf("decode payment display: %w", err)
		}
	}
	o.Payment.TransactionID = transactionID.String
	o.Payment.Processor = processor.String
	o.Payment.ProcessorToken = token.String
	o.Payment.PaidAt = nullTimePtr(paidAt)
	o.Payment.RefundedAt = nullTimePtr(refundedAt)
	o.Payment.LastEventAt = nullTimePtr(lastSeen)

	return o, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertOrder persists o together with its item groups and frozen product
// lines. IDs, the order number and timestamps are filled in on o.
func InsertOrder(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	var display any
	if o.Payment.MethodSnapshot != nil {
		b, err := json.Marshal(o.Payment.MethodSnapshot)
		if err != nil {
			return fmt.Errorf("encode payment display: %w", err)
		}
		display = b
	}

	var guestName, guestEmail sql.NullString
	if o.Guest != nil {
		guestName = nullString(o.Guest.Name)
		guestEmail = nullString(o.Guest.Email)
	}

	if o.OrderNumber == "" {
		o.OrderNumber = generateOrderNumber()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, consumer_id, guest_name, guest_email, shipping_address,
			status, payment_status, total_amount, currency,
			payment_transaction_id, payment_processor, payment_token, payment_display,
			paid_at, last_payment_event_at, notes, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW(), 1)
		RETURNING id, created_at, updated_at, version`,
		o.OrderNumber, o.ConsumerID, guestName, guestEmail, shipping,
		o.Status, o.PaymentStatus, o.TotalAmount, o.Currency,
		nullString(o.Payment.TransactionID), nullString(o.Payment.Processor), nullString(o.Payment.ProcessorToken), display,
		o.Payment.PaidAt, o.Payment.LastEventAt, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for gi := range o.Groups {
		group := &o.Groups[gi]
		group.OrderID = o.ID

		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_item_groups (order_id, farmer_id, subtotal, status, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, updated_at`,
			o.ID, group.FarmerID, group.Subtotal, group.Status,
		).Scan(&group.ID, &group.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create order item group: %w", err)
		}

		for li := range group.Lines {
			line := &group.Lines[li]
			err := tx.QueryRowContext(ctx, `
				INSERT INTO order_item_lines (group_id, product_id, product_name, quantity, unit_price, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				group.ID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.Subtotal,
			).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("create order item line: %w", err)
			}
		}
	}

	return nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, q, `o.id = $1`, id, "get order")
}

// GetOrderForUpdate loads the order and locks its row for the rest of tx.
func GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, tx, `o.id = $1 FOR UPDATE`, id, "lock order")
}

// GetOrderByTransactionForUpdate finds and locks the order paid through
// the given processor transaction.
func GetOrderByTransactionForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*models.Order, error) {
	return getOrderWhere(ctx, tx, `o.payment_transaction_id = $1 FOR UPDATE`, transactionID, "lock order by transaction")
}

func getOrderWhere(ctx context.Context, q database.Querier, where string, arg any, op string) (*models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	groups, err := loadGroups(ctx, q, []int64{o.ID}, nil)
	if err != nil {
		return nil, err
	}
	o.Groups = groups[o.ID]

	return o, nil
}

// loadGroups fetches item groups and their lines for every order id,
// optionally only those belonging to farmerID.
func loadGroups(ctx context.Context, q database.Querier, orderIDs []int64, farmerID *int64) (map[int64][]models.OrderItemGroup, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, farmer_id, subtotal, status, updated_at
		FROM order_item_groups
		WHERE order_id = ANY($1) AND ($2::BIGINT IS NULL OR farmer_id = $2)
		ORDER BY order_id, id`,
		pq.Array(orderIDs), farmerID)
	if err != nil {
		return nil, fmt.Errorf("get order item groups: %w", err)
	}

	var groups []models.OrderItemGroup
	var groupIDs []int64
	for rows.Next() {
		var g models.OrderItemGroup
		if err := rows.Scan(&g.ID, &g.OrderID, &g.FarmerID, &g.Subtotal, &g.Status, &g.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order item group: %w", err)
		}
		g.Lines = []models.OrderProductLine{}
		groups = append(groups, g)
		groupIDs = append(groupIDs, g.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	lines, err := loadLines(ctx, q, groupIDs)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[int64][]models.OrderItemGroup, len(orderIDs))
	for _, g := range groups {
		if l, ok := lines[g.ID]; ok {
			g.Lines = l
		}
		byOrder[g.OrderID] = append(byOrder[g.OrderID], g)
	}

	return byOrder, nil
}

func loadLines(ctx context.Context, q database.Querier, groupIDs []int64) (map[int64][]models.OrderProductLine, error) {
	lines := make(map[int64][]models.OrderProductLine, len(groupIDs))
	if len(groupIDs) == 0 {
		return lines, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, group_id, product_id, product_name, quantity, unit_price, subtotal
		FROM order_item_lines
		WHERE group_id = ANY($1)
		ORDER BY group_id, id`,
		pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("get order item lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderProductLine
		var groupID int64
		if err := rows.Scan(&l.ID, &groupID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item line: %w", err)
		}
		lines[groupID] = append(lines[groupID], l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// CompareAndSetGroupStatus moves a group from one status to the next only if
// it still holds the expected status.
func CompareAndSetGroupStatus(ctx context.Context, q database.Querier, groupID int64, from, to models.ItemStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE order_item_groups
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, groupID, from)
	if err != nil {
		return fmt.Errorf("update item group status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

func UpdateOrderStatus(ctx context.Context, q database.Querier, id int64, status models.OrderStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// UpdateOrderPayment writes the order status together with every mutable
// payment field.
func UpdateOrderPayment(ctx context.Context, q database.Querier, o *models.Order) error {
	err := q.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, paid_at = $3, refund_amount = $4,
		    refunded_at = $5, last_payment_event_at = $6,
		    updated_at = NOW(), version = version + 1
		WHERE id = $7
		RETURNING updated_at, version`,
		o.Status, o.PaymentStatus, o.Payment.PaidAt, o.Payment.RefundAmount,
		o.Payment.RefundedAt, o.Payment.LastEventAt, o.ID,
	).Scan(&o.UpdatedAt, &o.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOrderNotFound
		}
		return fmt.Errorf("update order payment: %w", err)
	}

	return nil
}

func ListConsumerOrders(ctx context.Context, q database.Querier, consumerID int64, cursor string, limit int) (*CursorPage, error) {
	_, limit = NormalizePage(1, limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.consumer_id = $1
		  AND (o.created_at, o.id) < ($2, $3)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4`,
		consumerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(ctx, q, rows, nil)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListFarmerOrders pages through orders containing at least one group for
// farmerID. Each returned order carries only that farmer's groups.
func ListFarmerOrders(ctx context.Context, q database.Querier, farmerID int64, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	const where = `EXISTS (SELECT 1 FROM order_item_groups g WHERE g.order_id = o.id AND g.farmer_id = $1)`

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, farmerID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count farmer orders: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE `+where+`
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`,
		farmerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list farmer orders: %w", err)
	}

	orders, err := collectOrders(ctx, q, rows, &farmerID)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

// ListOrders pages through every order, optionally filtered by status.
func ListOrders(ctx context.Context, q database.Querier, status models.OrderStatus, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = NormalizePage(page, pageSize)

	var total int64
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders o WHERE ($1 = '' OR o.status = $1)`,
		status).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE ($1 = '' OR o.status = $1)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`,
		status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(ctx, q, rows, nil)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

func collectOrders(ctx context.Context, q database.Querier, rows *sql.Rows, farmerID *int64) ([]models.Order, error) {
	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	groups, err := loadGroups(ctx, q, ids, farmerID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Groups = groups[orders[i].ID]
	}

	return orders, nil
}
