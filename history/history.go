// Package history persists the activity shown in a CDP's history table.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// ErrDSNRequired is returned when no database is configured.
var ErrDSNRequired = errors.New("history: database dsn must be configured")

// Entry is one row of CDP activity.
type Entry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CDPID          uint64    `gorm:"index;not null" json:"cdp_id"`
	CollateralType string    `json:"collateral_type"`
	Activity       string    `gorm:"not null" json:"activity"`
	Sender         string    `json:"sender"`
	TxHash         string    `json:"tx_hash"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// Store reads and writes history entries.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn and migrates the schema. postgres:// DSNs use the
// Postgres driver; anything else is treated as a sqlite DSN.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return New(db)
}

// New wraps an open database.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores an entry, assigning its id and timestamp when unset.
func (s *Store) Record(ctx context.Context, entry Entry) (Entry, error) {
	if s == nil || s.db == nil {
		return Entry{}, fmt.Errorf("history: store not configured")
	}
	if strings.TrimSpace(entry.Activity) == "" {
		return Entry{}, fmt.Errorf("history: activity required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, fmt.Errorf("record history: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries of cdpID, newest first.
func (s *Store) List(ctx context.Context, cdpID uint64, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history: store not configured")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("cdp_id = ?", cdpID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
