// Package gormstore implements the trade store on Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bastion/internal/store"
	"bastion/internal/store/model"
)

// GormStore persists trades and adjustment events to a single SQLite file.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (creating if needed) the SQLite database at path and
// runs migrations.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.TradeModel{}, &model.AdjustmentEventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep a tiny pool so HTTP status reads do not contend
	// with the trading loops.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

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

func (s *GormStore) SaveTrade(ctx context.Context, rec store.TradeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = "open"
	}
	var details []byte
	if len(rec.Details) > 0 {
		b, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("save trade %d: encode details: %w", rec.Ticket, err)
		}
		details = b
	}
	m := model.TradeModel{
		ID:         rec.ID,
		Ticket:     rec.Ticket,
		Instrument: rec.Instrument,
		Strategy:   rec.Strategy,
		Direction:  rec.Direction,
		Volume:     rec.Volume,
		EntryPrice: rec.EntryPrice,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
		OpenedAt:   rec.OpenedAt,
		ClosedAt:   rec.ClosedAt,
		Profit:     rec.Profit,
		Status:     rec.Status,
		Details:    details,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) MarkTradeClosed(ctx context.Context, ticket int64, profit float64, closedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("ticket = ?", ticket).
		Updates(map[string]any{
			"status":    "closed",
			"profit":    profit,
			"closed_at": closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark trade closed: ticket %d not found", ticket)
	}
	return nil
}

func (s *GormStore) RecordAdjustment(ctx context.Context, evt store.AdjustmentEvent) error {
	m := model.AdjustmentEventModel{
		Ticket:      evt.Ticket,
		Instrument:  evt.Instrument,
		Strategy:    evt.Strategy,
		Policy:      evt.Policy,
		Action:      evt.Action,
		OldStop:     evt.OldStop,
		NewStop:     evt.NewStop,
		CloseVolume: evt.CloseVolume,
		Reason:      evt.Reason,
		At:          evt.At,
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// DailyPnL sums realized profit of trades closed during the UTC day of day.
func (s *GormStore) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var total *float64
	err := s.db.WithContext(ctx).Model(&model.TradeModel{}).
		Where("status = ? AND closed_at >= ? AND closed_at < ?", "closed", start, end).
		Select("SUM(profit)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (s *GormStore) StrategyStats(ctx context.Context, strategy string, windowDays int) (store.StrategyStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	stats := store.StrategyStats{Strategy: strategy, WindowDays: windowDays}

	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Where("strategy = ? AND status = ? AND closed_at >= ?", strategy, "closed", since).
		Find(&rows).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, nil
		}
		return stats, err
	}
	for _, r := range rows {
		stats.Trades++
		stats.NetProfit += r.Profit
		if r.Profit > 0 {
			stats.Wins++
		}
	}
	return stats, nil
}
