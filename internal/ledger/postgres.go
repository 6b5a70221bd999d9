package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/infra"
)

// PostgresStore keeps wallets in PostgreSQL. Update takes a row lock with
// SELECT ... FOR UPDATE before balances are read.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed wallet store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id::text, owner_id::text, balance::text, reserved::text, currency, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, w Wallet) error {
	_, err := infra.QuerierFrom(ctx, s.db).Exec(ctx, `INSERT INTO wallets
        (id, owner_id, balance, reserved, currency, status, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)`,
		w.ID, w.OwnerID, w.Balance.String(), w.Reserved.String(), w.Currency, w.Status, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrWalletExists
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Wallet, error) {
	row := infra.QuerierFrom(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

func (s *PostgresStore) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	row := infra.QuerierFrom(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID)
	return scanWallet(row)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (Wallet, error) {
	var out Wallet
	err := infra.WithTx(ctx, s.db, func(txCtx context.Context) error {
		q := infra.QuerierFrom(txCtx, s.db)
		w, err := scanWallet(q.QueryRow(txCtx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(txCtx, &w); err != nil {
			return err
		}
		if len(w.journal) == 0 {
			out = w
			return nil
		}

		w.UpdatedAt = time.Now().UTC()
		if _, err := q.Exec(txCtx, `UPDATE wallets SET balance = $2::numeric, reserved = $3::numeric, updated_at = $4 WHERE id = $1`,
			w.ID, w.Balance.String(), w.Reserved.String(), w.UpdatedAt); err != nil {
			return fmt.Errorf("update wallet: %w", err)
		}
		for _, e := range w.journal {
			if _, err := q.Exec(txCtx, `INSERT INTO wallet_entries
                (id, wallet_id, op, amount, reference, balance_after, reserved_after, created_at)
                VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7::numeric, $8)`,
				e.ID, e.WalletID, string(e.Op), e.Amount.String(), e.Reference,
				e.BalanceAfter.String(), e.ReservedAfter.String(), e.CreatedAt); err != nil {
				return fmt.Errorf("insert wallet entry: %w", err)
			}
		}
		out = w
		return nil
	})
	if err != nil {
		return Wallet{}, err
	}
	return out, nil
}

func (s *PostgresStore) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := infra.QuerierFrom(ctx, s.db).Query(ctx, `SELECT id::text, wallet_id::text, op, amount::text, reference,
            balance_after::text, reserved_after::text, created_at
        FROM wallet_entries WHERE wallet_id = $1
        ORDER BY created_at DESC LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                               Entry
			op, amount, balance, reservedTo string
		)
		if err := rows.Scan(&e.ID, &e.WalletID, &op, &amount, &e.Reference, &balance, &reservedTo, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Op = Op(op)
		e.Amount = decimal.RequireFromString(amount)
		e.BalanceAfter = decimal.RequireFromString(balance)
		e.ReservedAfter = decimal.RequireFromString(reservedTo)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                 Wallet
		balance, reserved string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &balance, &reserved, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	if w.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return Wallet{}, fmt.Errorf("parse reserved: %w", err)
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
