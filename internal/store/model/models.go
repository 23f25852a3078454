package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeModel persists one confirmed order and its outcome.
type TradeModel struct {
	ID         string         `gorm:"column:id;primaryKey;size:36"`
	Ticket     int64          `gorm:"column:ticket;uniqueIndex"`
	Instrument string         `gorm:"column:instrument;size:16;index"`
	Strategy   string         `gorm:"column:strategy;size:64;index"`
	Direction  string         `gorm:"column:direction;size:8"`
	Volume     float64        `gorm:"column:volume"`
	EntryPrice float64        `gorm:"column:entry_price"`
	StopLoss   float64        `gorm:"column:stop_loss"`
	TakeProfit float64        `gorm:"column:take_profit"`
	OpenedAt   time.Time      `gorm:"column:opened_at;index"`
	ClosedAt   *time.Time     `gorm:"column:closed_at;index"`
	Profit     float64        `gorm:"column:profit"`
	Status     string         `gorm:"column:status;size:12;index"`
	Details    datatypes.JSON `gorm:"column:details;type:TEXT"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (TradeModel) TableName() string { return "trades" }

// AdjustmentEventModel persists one position adjustment for audit.
type AdjustmentEventModel struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Ticket      int64     `gorm:"column:ticket;index"`
	Instrument  string    `gorm:"column:instrument;size:16"`
	Strategy    string    `gorm:"column:strategy;size:64"`
	Policy      string    `gorm:"column:policy;size:32"`
	Action      string    `gorm:"column:action;size:16"`
	OldStop     float64   `gorm:"column:old_stop"`
	NewStop     float64   `gorm:"column:new_stop"`
	CloseVolume float64   `gorm:"column:close_volume"`
	Reason      string    `gorm:"column:reason;size:256"`
	At          time.Time `gorm:"column:at;index"`
}

func (AdjustmentEventModel) TableName() string { return "adjustment_events" }
