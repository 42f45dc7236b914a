package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrInvalidSession = errors.New("invalid session id")
)

type Store interface {
	GetBySessionID(ctx context.Context, sessionID string) (*Order, []Item, error)
	GetByID(ctx context.Context, id string) (*Order, []Item, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []Item) error
	// MaxOrderNumber returns the highest assigned order number. The bool is
	// false when the numbering column does not exist in this environment.
	MaxOrderNumber(ctx context.Context) (int64, bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	FindByPhone(ctx context.Context, digits string, since time.Time) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const fullSelect = `
    SELECT id, session_id, order_number, customer_name,
           COALESCE(customer_first_name,''), COALESCE(customer_last_name,''),
           customer_phone, COALESCE(customer_email,''), COALESCE(comments,''),
           subtotal::text, tax::text, tip::text, COALESCE(tip_percent,0)::text,
           total::text, status, created_at
    FROM orders
  `

const minimalSelect = `
    SELECT id, session_id, customer_name, customer_phone,
           subtotal::text, tax::text, tip::text, total::text, status, created_at
    FROM orders
  `

// InsertOrder writes the order using the full column set, and retries once
// with the reduced set when the deployed schema predates the newer optional
// columns. Any other storage error propagates unchanged.
func (r *PGRepo) InsertOrder(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
    INSERT INTO orders (id, session_id, order_number, customer_name,
      customer_first_name, customer_last_name, customer_phone, customer_email,
      comments, subtotal, tax, tip, tip_percent, total, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
  `, o.ID, o.SessionID, o.OrderNumber, o.CustomerName,
		nullIfEmpty(o.CustomerFirstName), nullIfEmpty(o.CustomerLastName),
		o.CustomerPhone, nullIfEmpty(o.CustomerEmail), nullIfEmpty(o.Comments),
		o.Subtotal.StringFixed(2), o.Tax.StringFixed(2), o.Tip.StringFixed(2),
		o.TipPercent.StringFixed(2), o.Total.StringFixed(2), o.Status)
	if err == nil || !isMissingColumnErr(err) {
		return err
	}

	// older schema without the optional columns; the number cannot be stored
	o.OrderNumber = nil
	_, err = r.db.Exec(ctx, `
    INSERT INTO orders (id, session_id, customer_name, customer_phone,
      subtotal, tax, tip, total, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
  `, o.ID, o.SessionID, o.CustomerName, o.CustomerPhone,
		o.Subtotal.StringFixed(2), o.Tax.StringFixed(2), o.Tip.StringFixed(2),
		o.Total.StringFixed(2), o.Status)
	return err
}

func (r *PGRepo) InsertItems(ctx context.Context, items []Item) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, it := range items {
		if _, err := r.db.Exec(ctx, `
      INSERT INTO order_items (id, order_id, source_id, name, quantity, unit_price)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, it.ID, it.OrderID, it.SourceID, it.Name, it.Quantity, it.UnitPrice.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) GetBySessionID(ctx context.Context, sessionID string) (*Order, []Item, error) {
	return r.getOrder(ctx, "session_id", sessionID)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, []Item, error) {
	return r.getOrder(ctx, "id", id)
}

func (r *PGRepo) getOrder(ctx context.Context, field, val string) (*Order, []Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := r.scanFull(r.db.QueryRow(ctx, fullSelect+` WHERE `+field+` = $1`, val))
	if err != nil && isMissingColumnErr(err) {
		o, err = r.scanMinimal(r.db.QueryRow(ctx, minimalSelect+` WHERE `+field+` = $1`, val))
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	items, err := r.getItems(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *PGRepo) getItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, source_id, name, quantity, unit_price::text
    FROM order_items WHERE order_id = $1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SourceID, &it.Name, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MaxOrderNumber reads the current maximum. A missing-column failure means
// the numbering feature is unavailable here, reported via ok=false.
func (r *PGRepo) MaxOrderNumber(ctx context.Context) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var max *int64
	err := r.db.QueryRow(ctx, `SELECT MAX(order_number) FROM orders`).Scan(&max)
	if err != nil {
		if isMissingColumnErr(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if max == nil {
		return 0, true, nil
	}
	return *max, true, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET status = $2 WHERE id = $1
  `, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByPhone looks up recent orders by normalized phone digits. Exact match
// first; legacy rows stored unnormalized phones, so fall back to a substring
// match when nothing hits.
func (r *PGRepo) FindByPhone(ctx context.Context, digits string, since time.Time) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := r.listOrders(ctx, ` WHERE customer_phone = $1 AND created_at >= $2 ORDER BY created_at DESC`, digits, since)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}
	return r.listOrders(ctx, ` WHERE customer_phone LIKE '%' || $1 || '%' AND created_at >= $2 ORDER BY created_at DESC`, digits, since)
}

func (r *PGRepo) listOrders(ctx context.Context, clause string, args ...any) ([]Order, error) {
	out, err := r.collectOrders(ctx, fullSelect+clause, true, args...)
	if err != nil && isMissingColumnErr(err) {
		out, err = r.collectOrders(ctx, minimalSelect+clause, false, args...)
	}
	return out, err
}

func (r *PGRepo) collectOrders(ctx context.Context, query string, full bool, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o *Order
		if full {
			o, err = r.scanFull(rows)
		} else {
			o, err = r.scanMinimal(rows)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) scanFull(row pgx.Row) (*Order, error) {
	var o Order
	var sub, tax, tip, tipPct, total string
	if err := row.Scan(&o.ID, &o.SessionID, &o.OrderNumber, &o.CustomerName,
		&o.CustomerFirstName, &o.CustomerLastName, &o.CustomerPhone,
		&o.CustomerEmail, &o.Comments, &sub, &tax, &tip, &tipPct, &total,
		&o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if err := o.setAmounts(sub, tax, tip, tipPct, total); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) scanMinimal(row pgx.Row) (*Order, error) {
	var o Order
	var sub, tax, tip, total string
	if err := row.Scan(&o.ID, &o.SessionID, &o.CustomerName, &o.CustomerPhone,
		&sub, &tax, &tip, &total, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	if err := o.setAmounts(sub, tax, tip, "0", total); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Order) setAmounts(sub, tax, tip, tipPct, total string) error {
	var err error
	if o.Subtotal, err = decimal.NewFromString(sub); err != nil {
		return err
	}
	if o.Tax, err = decimal.NewFromString(tax); err != nil {
		return err
	}
	if o.Tip, err = decimal.NewFromString(tip); err != nil {
		return err
	}
	if o.TipPercent, err = decimal.NewFromString(tipPct); err != nil {
		return err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return err
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
