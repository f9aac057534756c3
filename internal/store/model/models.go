package model

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerSnapshotModel holds the whole ledger document in a single row.
type LedgerSnapshotModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Document      datatypes.JSON `gorm:"column:document;type:TEXT"`
	Balance       string         `gorm:"column:balance"`
	Positions     int            `gorm:"column:positions"`
	OpenOrders    int            `gorm:"column:open_orders"`
	Version       int64          `gorm:"column:version"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`

	UpdatedAt time.Time `gorm:"-"`
}

func (LedgerSnapshotModel) TableName() string { return "ledger_snapshots" }

// LedgerTradeModel mirrors every fill, including ones the snapshot has
// already dropped from its capped history.
type LedgerTradeModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TimestampUnix int64          `gorm:"column:timestamp;uniqueIndex:idx_ledger_trade,priority:1"`
	Command       string         `gorm:"column:command;uniqueIndex:idx_ledger_trade,priority:2"`
	Symbol        string         `gorm:"column:symbol;index;uniqueIndex:idx_ledger_trade,priority:3"`
	Amount        string         `gorm:"column:amount;uniqueIndex:idx_ledger_trade,priority:4"`
	Quantity      string         `gorm:"column:quantity"`
	Price         string         `gorm:"column:price"`
	OrderID       *int64         `gorm:"column:order_id"`
	Raw           datatypes.JSON `gorm:"column:raw;type:TEXT"`
}

func (LedgerTradeModel) TableName() string { return "ledger_trades" }
