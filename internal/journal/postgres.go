package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// eventRecord is the gorm model for execution_events.
type eventRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"not null;index"`
	Kind      string    `gorm:"size:32;not null"`
	RunID     string    `gorm:"size:64;index"`
	Strategy  string    `gorm:"size:16"`
	Symbol    string    `gorm:"size:32"`
	OrderID   string    `gorm:"size:64;index"`
	Side      string    `gorm:"size:8"`
	OrderType string    `gorm:"size:16"`
	Quantity  string    `gorm:"not null;default:'0'"`
	Price     string    `gorm:"not null;default:'0'"`
	Status    string    `gorm:"size:32"`
	Message   string
}

func (eventRecord) TableName() string {
	return "execution_events"
}

func toRecord(e Event) eventRecord {
	return eventRecord{
		Timestamp: e.Time,
		Kind:      string(e.Kind),
		RunID:     e.RunID,
		Strategy:  e.Strategy,
		Symbol:    e.Symbol,
		OrderID:   e.OrderID,
		Side:      e.Side,
		OrderType: e.OrderType,
		Quantity:  e.Quantity.String(),
		Price:     e.Price.String(),
		Status:    e.Status,
		Message:   e.Message,
	}
}

func (r eventRecord) toEvent() Event {
	qty, _ := decimal.NewFromString(r.Quantity)
	px, _ := decimal.NewFromString(r.Price)
	return Event{
		ID:        r.ID,
		Time:      r.Timestamp,
		Kind:      Kind(r.Kind),
		RunID:     r.RunID,
		Strategy:  r.Strategy,
		Symbol:    r.Symbol,
		OrderID:   r.OrderID,
		Side:      r.Side,
		OrderType: r.OrderType,
		Quantity:  qty,
		Price:     px,
		Status:    r.Status,
		Message:   r.Message,
	}
}

// Postgres stores events through gorm.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres connects with exponential backoff and migrates the schema.
func NewPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres journal: dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var db *gorm.DB
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		var err error
		db, err = gorm.Open(pg.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Warn("connect postgres failed", zap.Error(err))
		}
		return err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&eventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Append inserts an event.
func (j *Postgres) Append(ctx context.Context, e Event) error {
	rec := toRecord(stamp(e))
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (j *Postgres) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 100
	}

	var recs []eventRecord
	if err := j.db.WithContext(ctx).Order("id desc").Limit(n).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]Event, 0, len(recs))
	for _, r := range recs {
		events = append(events, r.toEvent())
	}
	return events, nil
}

// Close closes the underlying connection pool.
func (j *Postgres) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
