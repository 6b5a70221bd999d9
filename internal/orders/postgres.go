package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/infra"
)

// PostgresRepository stores orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id::text, user_id::text, wallet_id::text, kind, status, charge_mode,
    amount_charged::text, currency, provider_reference, error_message,
    held::text, debited::text, details, created_at, updated_at,
    confirmed_at, cancelled_at, delivered_at`

func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	details, err := json.Marshal(o.Details)
	if err != nil {
		return fmt.Errorf("encode order details: %w", err)
	}
	_, err = infra.QuerierFrom(ctx, r.db).Exec(ctx, `INSERT INTO orders
        (id, user_id, wallet_id, kind, status, charge_mode, amount_charged, currency,
         provider_reference, error_message, held, debited, details, created_at, updated_at,
         confirmed_at, cancelled_at, delivered_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11::numeric, $12::numeric, $13,
                $14, $15, $16, $17, $18)`,
		o.ID, o.UserID, o.WalletID, string(o.Kind), string(o.Status), string(o.ChargeMode),
		nullableAmount(o.AmountCharged), o.Currency, nullableText(o.ProviderReference),
		nullableText(o.ErrorMessage), o.Held.String(), o.Debited.String(), details,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(), o.ConfirmedAt, o.CancelledAt, o.DeliveredAt)
	return mapWriteError(err)
}

func (r *PostgresRepository) Update(ctx context.Context, o Order) error {
	details, err := json.Marshal(o.Details)
	if err != nil {
		return fmt.Errorf("encode order details: %w", err)
	}
	tag, err := infra.QuerierFrom(ctx, r.db).Exec(ctx, `UPDATE orders SET
            status = $2, amount_charged = $3::numeric, provider_reference = $4, error_message = $5,
            held = $6::numeric, debited = $7::numeric, details = $8, updated_at = $9,
            confirmed_at = $10, cancelled_at = $11, delivered_at = $12
        WHERE id = $1`,
		o.ID, string(o.Status), nullableAmount(o.AmountCharged), nullableText(o.ProviderReference),
		nullableText(o.ErrorMessage), o.Held.String(), o.Debited.String(), details,
		o.UpdatedAt.UTC(), o.ConfirmedAt, o.CancelledAt, o.DeliveredAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(infra.QuerierFrom(ctx, r.db).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByReference(ctx context.Context, kind Kind, reference string) (Order, error) {
	if reference == "" {
		return Order{}, ErrNotFound
	}
	return scanOrder(infra.QuerierFrom(ctx, r.db).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE kind = $1 AND provider_reference = $2`, string(kind), reference))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := infra.QuerierFrom(ctx, r.db).Query(ctx, `SELECT `+orderColumns+` FROM orders
        WHERE user_id = $1 AND ($2::text = '' OR kind = $2::text)
        ORDER BY created_at DESC LIMIT $3`, userID, string(filter.Kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendSMS(ctx context.Context, sms SMS) error {
	_, err := infra.QuerierFrom(ctx, r.db).Exec(ctx,
		`INSERT INTO order_sms (id, order_id, body, received_at) VALUES ($1, $2, $3, $4)`,
		sms.ID, sms.OrderID, sms.Text, sms.ReceivedAt.UTC())
	return err
}

func (r *PostgresRepository) Messages(ctx context.Context, orderID string) ([]SMS, error) {
	rows, err := infra.QuerierFrom(ctx, r.db).Query(ctx,
		`SELECT id::text, order_id::text, body, received_at FROM order_sms WHERE order_id = $1 ORDER BY received_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SMS
	for rows.Next() {
		var m SMS
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Text, &m.ReceivedAt); err != nil {
			return nil, err
		}
		m.ReceivedAt = m.ReceivedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                                   Order
		kind, status, mode                  string
		amount, reference, errMsg           *string
		held, debited                       string
		details                             []byte
		confirmedAt, cancelledAt, delivered *time.Time
	)
	err := row.Scan(&o.ID, &o.UserID, &o.WalletID, &kind, &status, &mode,
		&amount, &o.Currency, &reference, &errMsg,
		&held, &debited, &details, &o.CreatedAt, &o.UpdatedAt,
		&confirmedAt, &cancelledAt, &delivered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Kind, o.Status, o.ChargeMode = Kind(kind), Status(status), ChargeMode(mode)
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return Order{}, fmt.Errorf("parse amount_charged: %w", err)
		}
		o.AmountCharged = decimal.NewNullDecimal(d)
	}
	if reference != nil {
		o.ProviderReference = *reference
	}
	if errMsg != nil {
		o.ErrorMessage = *errMsg
	}
	if o.Held, err = decimal.NewFromString(held); err != nil {
		return Order{}, fmt.Errorf("parse held: %w", err)
	}
	if o.Debited, err = decimal.NewFromString(debited); err != nil {
		return Order{}, fmt.Errorf("parse debited: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.Details); err != nil {
			return Order{}, fmt.Errorf("decode order details: %w", err)
		}
	}
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	o.ConfirmedAt, o.CancelledAt, o.DeliveredAt = utcPtr(confirmedAt), utcPtr(cancelledAt), utcPtr(delivered)
	return o, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableAmount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
