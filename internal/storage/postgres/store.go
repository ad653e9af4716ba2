// Package postgres is a host.Store backed by Postgres. Each host
// transaction is one SQL transaction; declared lock keys are taken as
// transaction-scoped advisory locks.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS accounts_owner_idx ON accounts (owner);
`

// Store provides Postgres persistence for host accounts.
type Store struct {
	pool *pgxpool.Pool
}

var _ host.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the accounts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// storeLock is the advisory key every transaction takes: shared when it
// declares account keys, exclusive when it declares none.
const storeLock = "lrtpool:accounts"

// Begin opens a transaction and blocks until every lock key is held.
func (s *Store) Begin(ctx context.Context, locks []solana.PublicKey) (host.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	storeQuery := `SELECT pg_advisory_xact_lock_shared(hashtextextended($1, 0))`
	if locks == nil {
		storeQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	}
	if _, err := tx.Exec(ctx, storeQuery, storeLock); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("lock store: %w", err)
	}
	for _, key := range host.SortedLocks(locks) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
	}
	return &pgTx{tx: tx}, nil
}

// OwnedBy lists committed accounts owned by owner.
func (s *Store) OwnedBy(ctx context.Context, owner solana.PublicKey) ([]host.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM accounts WHERE owner = $1 ORDER BY address`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []host.Account
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var acct host.Account
		if err := json.Unmarshal(body, &acct); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, address solana.PublicKey) (*host.Account, error) {
	var body []byte
	err := t.tx.QueryRow(ctx, `SELECT body FROM accounts WHERE address = $1`, address.String()).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", poolerr.ErrAccountNotFound, address)
		}
		return nil, err
	}
	var acct host.Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", address, err)
	}
	return &acct, nil
}

func (t *pgTx) Put(ctx context.Context, account *host.Account) error {
	body, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", account.Address, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO accounts (address, owner, kind, body, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (address) DO UPDATE
		SET owner = EXCLUDED.owner, kind = EXCLUDED.kind, body = EXCLUDED.body, updated_at = now()
	`, account.Address.String(), account.Owner.String(), string(account.Kind), body)
	return err
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
