package app

import (
	"context"
	"fmt"
	"strings"

	brcfg "cryptoprinter/internal/config"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/store/filestore"
	"cryptoprinter/internal/store/gormstore"
	"cryptoprinter/internal/store/pgstore"

	"github.com/shopspring/decimal"
)

// LedgerStore is a ledger.Store the app can also wipe.
type LedgerStore interface {
	ledger.Store
	Reset(ctx context.Context) error
}

type fileLedgerStore struct {
	*filestore.Store
}

func (s fileLedgerStore) Reset(context.Context) error { return s.Remove() }

// OpenLedgerStore opens the backend named by cfg.Backend.
func OpenLedgerStore(ctx context.Context, cfg brcfg.LedgerConfig) (LedgerStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		s, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fileLedgerStore{s}, nil
	case "sqlite":
		s, err := gormstore.NewGormStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := pgstore.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// OpenLedger loads the ledger from store, starting fresh with the configured
// balance when nothing was saved yet.
func OpenLedger(ctx context.Context, cfg brcfg.LedgerConfig, store ledger.Store) (*ledger.Ledger, error) {
	book, err := ledger.Open(ctx, store, ledger.Options{
		InitialBalance: decimal.NewFromFloat(cfg.InitialBalance),
		MaxHistory:     cfg.MaxHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return book, nil
}

// ResetLedger deletes the persisted ledger. The next start begins again
// from the initial balance.
func ResetLedger(ctx context.Context, cfg brcfg.LedgerConfig) error {
	store, err := OpenLedgerStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	logger.Warnf("ledger reset backend=%s", cfg.Backend)
	return nil
}
