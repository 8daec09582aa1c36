// Package indexer persists committed kiosk events into SQLite (or postgres) so
// clients can page through a kiosk's history without replaying state.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EventRecord is one indexed kiosk event.
type EventRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Type       string `gorm:"index;size:64"`
	KioskID    string `gorm:"index;size:64"`
	AssetID    string `gorm:"index;size:64"`
	Amount     string `gorm:"size:80"`
	Attributes string
	Timestamp  int64
	CreatedAt  time.Time
}

// Sink is an events.Emitter that appends every kiosk event to the index.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// dialectorFor selects the gorm dialect for dsn: postgres URLs use the
// postgres driver, anything else is treated as a SQLite file path.
func dialectorFor(dsn string) gorm.Dialector {
	if isPostgresDSN(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Open connects to the index database, creating the schema when missing. dsn
// is either a postgres:// URL or a SQLite file path; ":memory:" gives an
// ephemeral SQLite index.
func Open(dsn string, log *slog.Logger) (*Sink, error) {
	path := strings.TrimSpace(dsn)
	if path == "" {
		return nil, errors.New("indexer: database path required")
	}
	if path != ":memory:" && !isPostgresDSN(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("indexer: create directory: %w", err)
		}
	}
	db, err := gorm.Open(dialectorFor(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("indexer: %w", err)
		}
		// each new connection would see its own empty in-memory database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{db: db, logger: log}, nil
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Events that carry no wire payload are
// ignored; storage failures are logged since emission happens after commit.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		return
	}
	if err := s.Record(carrier.Event()); err != nil {
		s.logger.Error("index kiosk event", "type", evt.EventType(), "error", err)
	}
}

// Record stores a single wire event.
func (s *Sink) Record(evt *types.Event) error {
	if evt == nil {
		return errors.New("indexer: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("indexer: encode attributes: %w", err)
	}
	record := EventRecord{
		Type:       evt.Type,
		KioskID:    evt.Attributes["kioskId"],
		AssetID:    evt.Attributes["assetId"],
		Amount:     evt.Attributes["amount"],
		Attributes: string(attrs),
	}
	if raw := evt.Attributes["timestamp"]; raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			record.Timestamp = ts
		}
	}
	return s.db.Create(&record).Error
}

// Query narrows a List call. Zero values match everything.
type Query struct {
	KioskID string
	AssetID string
	Type    string
	AfterID uint64
	Limit   int
}

// List returns indexed events in insertion order.
func (s *Sink) List(ctx context.Context, q Query) ([]EventRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	tx := s.db.WithContext(ctx).Model(&EventRecord{})
	if q.KioskID != "" {
		tx = tx.Where("kiosk_id = ?", strings.ToLower(q.KioskID))
	}
	if q.AssetID != "" {
		tx = tx.Where("asset_id = ?", strings.ToLower(q.AssetID))
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.AfterID > 0 {
		tx = tx.Where("id > ?", q.AfterID)
	}
	var out []EventRecord
	if err := tx.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	return out, nil
}

// Decode returns the stored attribute map of a record.
func (r EventRecord) Decode() (map[string]string, error) {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}
