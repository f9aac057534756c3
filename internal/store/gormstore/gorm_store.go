package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptoprinter/internal/ledger"
	storemodel "cryptoprinter/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type snapshotModel = storemodel.LedgerSnapshotModel
type tradeModel = storemodel.LedgerTradeModel

const snapshotRowID = 1

// GormStore implements ledger.Store using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (and migrates) the ledger database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 账本路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&snapshotModel{}, &tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

var _ ledger.Store = (*GormStore)(nil)

func (s *GormStore) Load(ctx context.Context) (ledger.Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return ledger.Snapshot{}, false, fmt.Errorf("gorm store 未初始化")
	}
	var row snapshotModel
	err := s.db.WithContext(ctx).Where("id = ?", snapshotRowID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(row.Document, &snap); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("gorm store: decode snapshot v%d: %w", row.Version, err)
	}
	return snap, true, nil
}

// Save replaces the snapshot row and mirrors new trades in one transaction.
func (s *GormStore) Save(ctx context.Context, snap ledger.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := snapshotModel{
			ID:            snapshotRowID,
			Document:      datatypes.JSON(doc),
			Balance:       snap.Balance.String(),
			Positions:     len(snap.Positions),
			OpenOrders:    countOpen(snap.OpenOrders),
			Version:       1,
			UpdatedAtUnix: now.UnixMilli(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"document":    gorm.Expr("excluded.document"),
				"balance":     gorm.Expr("excluded.balance"),
				"positions":   gorm.Expr("excluded.positions"),
				"open_orders": gorm.Expr("excluded.open_orders"),
				"version":     gorm.Expr("ledger_snapshots.version + 1"),
				"updated_at":  gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		trades := make([]tradeModel, 0, len(snap.TradeHistory))
		for _, t := range snap.TradeHistory {
			trades = append(trades, newTradeModel(t))
		}
		if len(trades) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(trades, 100).Error
	})
}

// ListTrades returns mirrored fills newest first.
func (s *GormStore) ListTrades(ctx context.Context, limit int) ([]ledger.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []tradeModel
	if err := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.TradeRecord, 0, len(rows))
	for _, r := range rows {
		var rec ledger.TradeRecord
		if err := json.Unmarshal(r.Raw, &rec); err != nil {
			return nil, fmt.Errorf("gorm store: decode trade %d: %w", r.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Reset drops the snapshot row. Mirrored trades are kept.
func (s *GormStore) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	return s.db.WithContext(ctx).Where("id = ?", snapshotRowID).Delete(&snapshotModel{}).Error
}

// --------------------------- Model Helpers ------------------------------

func newTradeModel(t ledger.TradeRecord) tradeModel {
	raw, _ := json.Marshal(t)
	m := tradeModel{
		TimestampUnix: t.Timestamp.UnixNano(),
		Command:       t.Command,
		Symbol:        t.Symbol,
		Amount:        t.Amount.String(),
		Quantity:      t.Quantity.String(),
		Price:         t.Price.String(),
		Raw:           datatypes.JSON(raw),
	}
	if t.OrderID != nil {
		id := *t.OrderID
		m.OrderID = &id
	}
	return m
}

func countOpen(orders []ledger.OpenOrder) int {
	n := 0
	for _, o := range orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
