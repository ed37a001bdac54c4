// Package sqlite provides a SQLite-backed implementation of order.Repository.
//
// WAL mode is enabled on Open so that admin reads never block the checkout
// and commit writes happening on the request path.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lienzolab/storefront/internal/order"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// which keeps the Docker build on Alpine trivial.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
// Amounts are stored as TEXT holding decimal strings; SQLite's REAL would
// reintroduce the float rounding the decimal type exists to avoid.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    customer_name       TEXT NOT NULL,
    customer_email      TEXT NOT NULL,
    customer_phone      TEXT NOT NULL DEFAULT '',
    total_amount        TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'pending',
    image_url           TEXT NOT NULL DEFAULT '',

    token               TEXT NOT NULL DEFAULT '',
    buy_order           TEXT NOT NULL DEFAULT '',
    session_id          TEXT NOT NULL DEFAULT '',
    response_code       INTEGER,
    gateway_status      TEXT NOT NULL DEFAULT '',
    authorization_code  TEXT NOT NULL DEFAULT '',
    transaction_date    TEXT NOT NULL DEFAULT '',
    paid_at             TEXT,

    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_token     ON orders(token);
CREATE INDEX IF NOT EXISTS idx_orders_buy_order ON orders(buy_order);
CREATE INDEX IF NOT EXISTS idx_orders_status    ON orders(status);

CREATE TABLE IF NOT EXISTS order_items (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id     TEXT NOT NULL,
    width        INTEGER NOT NULL,
    height       INTEGER NOT NULL,
    unit         TEXT NOT NULL DEFAULT 'cm',
    frame_option TEXT NOT NULL DEFAULT '',
    unit_price   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
`

const orderColumns = `id, customer_name, customer_email, customer_phone,
	total_amount, status, image_url,
	token, buy_order, session_id, response_code, gateway_status,
	authorization_code, transaction_date, paid_at,
	created_at, updated_at`

// Repository is the SQLite implementation of order.Repository.
type Repository struct {
	db *sql.DB
}

var _ order.Repository = (*Repository)(nil)

// Open opens (or creates) the SQLite database at the given path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// "sqlite", not "sqlite3", for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, o *order.Order, items []order.Item) (*order.Order, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertOrder = `
		INSERT INTO orders
			(id, customer_name, customer_email, customer_phone,
			 total_amount, status, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insertOrder,
		o.ID,
		o.CustomerName,
		o.CustomerEmail,
		o.CustomerPhone,
		o.TotalAmount.String(),
		string(order.StatusPending),
		o.ImageURL,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: insert order %q: %w", o.ID, err)
	}

	const insertItem = `
		INSERT INTO order_items (order_id, width, height, unit, frame_option, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)`

	for _, it := range items {
		if _, err := tx.ExecContext(ctx, insertItem,
			o.ID, it.Width, it.Height, it.Unit, it.FrameOption, it.UnitPrice.String(),
		); err != nil {
			return nil, fmt.Errorf("sqlite: insert item for order %q: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit create order %q: %w", o.ID, err)
	}

	created := *o
	created.Status = order.StatusPending
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, "id", id)
}

func (r *Repository) FindByToken(ctx context.Context, token string) (*order.Order, error) {
	if token == "" {
		return nil, order.ErrNotFound
	}
	return r.findOne(ctx, "token", token)
}

func (r *Repository) FindByBuyOrder(ctx context.Context, buyOrder string) (*order.Order, error) {
	if buyOrder == "" {
		return nil, order.ErrNotFound
	}
	return r.findOne(ctx, "buy_order", buyOrder)
}

func (r *Repository) findOne(ctx context.Context, column, value string) (*order.Order, error) {
	q := fmt.Sprintf("SELECT %s FROM orders WHERE %s = ? LIMIT 1", orderColumns, column)
	row := r.db.QueryRowContext(ctx, q, value)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find order by %s %q: %w", column, value, err)
	}
	return o, nil
}

func (r *Repository) AttachGatewaySession(ctx context.Context, id, token, buyOrder, sessionID string) error {
	const q = `
		UPDATE orders
		SET    token = ?, buy_order = ?, session_id = ?,
		       status = ?, updated_at = ?
		WHERE  id = ?`

	res, err := r.db.ExecContext(ctx, q,
		token, buyOrder, sessionID,
		string(order.StatusPending), formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: attach gateway session to %q: %w", id, err)
	}
	return requireRows(res, id)
}

func (r *Repository) ApplyCommit(ctx context.Context, id string, f order.CommitFields) (bool, error) {
	// The status <> 'paid' guard closes the window between the service's
	// already-paid check and this write: of two concurrent commits for the
	// same order, exactly one passes the guard.
	const q = `
		UPDATE orders
		SET    status = ?, response_code = ?, gateway_status = ?,
		       authorization_code = ?, transaction_date = ?, paid_at = ?,
		       token = CASE WHEN ? <> '' THEN ? ELSE token END,
		       buy_order = CASE WHEN ? <> '' THEN ? ELSE buy_order END,
		       updated_at = ?
		WHERE  id = ? AND status <> ?`

	res, err := r.db.ExecContext(ctx, q,
		string(f.Status), f.ResponseCode, f.GatewayStatus,
		f.AuthorizationCode, f.TransactionDate, nullableTime(f.PaidAt),
		f.Token, f.Token,
		f.BuyOrder, f.BuyOrder,
		formatTime(time.Now().UTC()),
		id, string(order.StatusPaid),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: apply commit to %q: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: apply commit to %q: rows affected: %w", id, err)
	}
	return n > 0, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	const q = `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, q, string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("sqlite: update status of %q: %w", id, err)
	}
	return requireRows(res, id)
}

func (r *Repository) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin delete orders: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	// Items go first: the store does not cascade at this layer and orphaned
	// items would be unreachable afterwards.
	delItems := fmt.Sprintf("DELETE FROM order_items WHERE order_id IN (%s)", placeholders)
	if _, err := tx.ExecContext(ctx, delItems, args...); err != nil {
		return 0, fmt.Errorf("sqlite: delete order items: %w", err)
	}

	delOrders := fmt.Sprintf("DELETE FROM orders WHERE id IN (%s)", placeholders)
	res, err := tx.ExecContext(ctx, delOrders, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete orders: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete orders: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit delete orders: %w", err)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context) ([]*order.Order, error) {
	q := fmt.Sprintf("SELECT %s FROM orders ORDER BY created_at DESC", orderColumns)

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list orders: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	return out, nil
}

func (r *Repository) ItemsByOrder(ctx context.Context, id string) ([]order.Item, error) {
	const q = `
		SELECT id, order_id, width, height, unit, frame_option, unit_price
		FROM   order_items
		WHERE  order_id = ?
		ORDER  BY id`

	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: items of order %q: %w", id, err)
	}
	defer rows.Close()

	var out []order.Item
	for rows.Next() {
		var it order.Item
		var price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Width, &it.Height, &it.Unit, &it.FrameOption, &price); err != nil {
			return nil, fmt.Errorf("sqlite: scan item of order %q: %w", id, err)
		}
		it.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse item price %q: %w", price, err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: items of order %q: %w", id, err)
	}
	return out, nil
}

// requireRows maps a zero-row write to order.ErrNoRowsAffected so callers
// can distinguish "nothing matched" from a successful update.
func requireRows(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: update of order %q: %w", id, order.ErrNoRowsAffected)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*order.Order, error) {
	var (
		o            order.Order
		amount       string
		responseCode sql.NullInt64
		paidAt       sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&o.ID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&amount, &o.Status, &o.ImageURL,
		&o.Token, &o.BuyOrder, &o.SessionID, &responseCode, &o.GatewayStatus,
		&o.AuthorizationCode, &o.TransactionDate, &paidAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if o.TotalAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse total_amount %q: %w", amount, err)
	}
	if responseCode.Valid {
		rc := int(responseCode.Int64)
		o.ResponseCode = &rc
	}
	if paidAt.Valid && paidAt.String != "" {
		t, err := parseTime(paidAt.String)
		if err != nil {
			return nil, err
		}
		o.PaidAt = &t
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
