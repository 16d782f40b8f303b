// Package queue is the client's durability boundary: every mutating action
// is appended here before any network attempt, and the current shift
// snapshot lives here so a restart resumes exactly where it left off.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veranda-labs/canvass/internal/shift"
)

// EntryKind distinguishes the payloads carried by queue entries.
type EntryKind string

const (
	EntryKindDoorEvent    EntryKind = "door_event"
	EntryKindShiftSummary EntryKind = "shift_summary"
)

// Entry wraps a pending record. EntryID is the client-generated id reused as
// the remote idempotency key; an entry is destroyed only after the remote
// store acknowledged it.
type Entry struct {
	EntryID            string    `gorm:"column:entry_id;primaryKey;size:190;not null"`
	Kind               EntryKind `gorm:"column:kind;size:32;not null"`
	ShiftID            string    `gorm:"column:shift_id;size:190;not null;index:idx_queue_shift"`
	RepID              string    `gorm:"column:rep_id;size:190;not null"`
	CalendarDate       string    `gorm:"column:calendar_date;size:10;not null;index:idx_queue_date"`
	PayloadJSON        string    `gorm:"column:payload_json;type:text;not null"`
	Synced             bool      `gorm:"column:synced;not null;default:false;index:idx_queue_synced"`
	Attempts           int       `gorm:"column:attempts;not null;default:0"`
	LastError          string    `gorm:"column:last_error;type:text;not null;default:''"`
	EnqueuedAtSeconds  int64     `gorm:"column:enqueued_at_s;not null"`
	LastAttemptSeconds int64     `gorm:"column:last_attempt_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "queue_entries"
}

type shiftSnapshot struct {
	RepID            string `gorm:"column:rep_id;primaryKey;size:190;not null"`
	ShiftJSON        string `gorm:"column:shift_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

func (shiftSnapshot) TableName() string {
	return "shift_snapshots"
}

// StoreConfig describes the dependencies for a queue Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store is the durable local queue plus the current-shift snapshot.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// Open establishes the client's local SQLite store and migrates its schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("queue: database path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := NewStore(StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("local queue opened", zap.String("path", path))
	}
	return store, nil
}

// NewStore wraps an existing database handle and migrates the schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("queue: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Database.AutoMigrate(&Entry{}, &shiftSnapshot{}); err != nil {
		return nil, err
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnqueueDoorEvent appends a door event under its own id.
func (s *Store) EnqueueDoorEvent(event shift.DoorEvent, repID, calendarDate string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: encoding door event: %w", err)
	}
	return s.enqueue(Entry{
		EntryID:      event.ID,
		Kind:         EntryKindDoorEvent,
		ShiftID:      event.ShiftID,
		RepID:        repID,
		CalendarDate: calendarDate,
		PayloadJSON:  string(payload),
	})
}

// EnqueueShiftSummary appends a shift-summary snapshot keyed by shift id, so
// a later snapshot of the same shift replaces the pending one instead of
// queueing a duplicate.
func (s *Store) EnqueueShiftSummary(summary shift.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("queue: encoding shift summary: %w", err)
	}
	return s.enqueue(Entry{
		EntryID:      "summary:" + summary.ShiftID,
		Kind:         EntryKindShiftSummary,
		ShiftID:      summary.ShiftID,
		RepID:        summary.RepID,
		CalendarDate: summary.CalendarDate,
		PayloadJSON:  string(payload),
	})
}

func (s *Store) enqueue(entry Entry) error {
	entry.EnqueuedAtSeconds = s.clock().UTC().Unix()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload_json", "enqueued_at_s", "synced"}),
	}).Create(&entry).Error
}

// Drain returns up to limit unsynced entries in enqueue order. A limit of
// zero or less returns everything pending.
func (s *Store) Drain(limit int) ([]Entry, error) {
	query := s.db.
		Where("synced = ?", false).
		Order("enqueued_at_s ASC, entry_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkSynced destroys entries the remote store acknowledged.
func (s *Store) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Where("entry_id IN ?", ids).Delete(&Entry{}).Error
}

// MarkFailed records a failed sync attempt. The entry itself stays queued
// untouched for the next cycle.
func (s *Store) MarkFailed(id string, attemptErr error) error {
	message := ""
	if attemptErr != nil {
		message = attemptErr.Error()
	}
	return s.db.Model(&Entry{}).
		Where("entry_id = ?", id).
		Updates(map[string]interface{}{
			"attempts":       gorm.Expr("attempts + 1"),
			"last_error":     message,
			"last_attempt_s": s.clock().UTC().Unix(),
		}).Error
}

// Pending counts entries still awaiting acknowledgement.
func (s *Store) Pending() (int64, error) {
	var count int64
	err := s.db.Model(&Entry{}).Where("synced = ?", false).Count(&count).Error
	return count, err
}

// SaveShift upserts the current shift snapshot for the rep. It implements
// shift.SnapshotStore.
func (s *Store) SaveShift(current *shift.Shift) error {
	if current == nil {
		return fmt.Errorf("queue: cannot snapshot a nil shift")
	}
	payload, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("queue: encoding shift snapshot: %w", err)
	}
	snapshot := shiftSnapshot{
		RepID:            current.RepID,
		ShiftJSON:        string(payload),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rep_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"shift_json", "updated_at_s"}),
	}).Create(&snapshot).Error
}

// LoadShift returns the persisted shift snapshot for the rep, if present.
func (s *Store) LoadShift(repID string) (*shift.Shift, bool, error) {
	var snapshot shiftSnapshot
	err := s.db.Where("rep_id = ?", repID).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var restored shift.Shift
	if err := json.Unmarshal([]byte(snapshot.ShiftJSON), &restored); err != nil {
		return nil, false, fmt.Errorf("queue: decoding shift snapshot: %w", err)
	}
	return &restored, true, nil
}
