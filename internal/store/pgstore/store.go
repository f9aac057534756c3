// Package pgstore keeps the ledger snapshot in PostgreSQL as a JSONB row.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cryptoprinter/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotRowID = 1

const migrateSQL = `CREATE TABLE IF NOT EXISTS ledger_snapshots (
	id          SMALLINT PRIMARY KEY,
	document    JSONB NOT NULL,
	balance     NUMERIC NOT NULL,
	reserved    NUMERIC NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements ledger.Store on a pgx pool. Balance and reserved cash are
// duplicated into NUMERIC columns so they can be queried without the JSON.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the table when missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("pgstore: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (ledger.Snapshot, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document::TEXT FROM ledger_snapshots WHERE id = $1`, snapshotRowID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("pgstore: load: %w", err)
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("pgstore: decode: %w", err)
	}
	return snap, true, nil
}

func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("pgstore: encode: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_snapshots (id, document, balance, reserved, updated_at)
		 VALUES ($1, $2::JSONB, $3::NUMERIC, $4::NUMERIC, now())
		 ON CONFLICT (id) DO UPDATE SET
		   document = EXCLUDED.document,
		   balance = EXCLUDED.balance,
		   reserved = EXCLUDED.reserved,
		   version = ledger_snapshots.version + 1,
		   updated_at = EXCLUDED.updated_at`,
		snapshotRowID, string(doc), snap.Balance.String(), snap.Reserved.String())
	if err != nil {
		return fmt.Errorf("pgstore: save: %w", err)
	}
	return nil
}

// Reset deletes the snapshot row.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ledger_snapshots WHERE id = $1`, snapshotRowID); err != nil {
		return fmt.Errorf("pgstore: reset: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ ledger.Store = (*Store)(nil)
