package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/shift"
)

// ErrRemoteConflict indicates a client merge lost to an administrative
// correction. The write is rejected; the client's view is stale by design.
var ErrRemoteConflict = errors.New("store: summary locked by administrative correction")

// OpenSQLite establishes the API database and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
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

	if err := db.AutoMigrate(&DoorEventRecord{}, &ShiftSummaryRecord{}, &migrationRecord{}); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}
	return db, nil
}

// ServiceConfig describes the dependencies for the collection service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the door_events and shift_summaries collections.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the collection service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("store: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// UpsertDoorEvent inserts the event if its id has not been seen. Replaying
// the same id leaves the stored record untouched, so at-least-once delivery
// never produces duplicates.
func (s *Service) UpsertDoorEvent(ctx context.Context, repID string, event shift.DoorEvent) error {
	record := DoorEventRecord{
		EventID:           event.ID,
		ShiftID:           event.ShiftID,
		RepID:             repID,
		TimestampMillis:   event.Timestamp.UnixMilli(),
		Status:            string(event.Status),
		Latitude:          event.Position.Lat,
		Longitude:         event.Position.Lng,
		Accuracy:          event.Position.Accuracy,
		HouseNumber:       event.HouseNumber,
		RoadName:          event.RoadName,
		Note:              event.Note,
		ReceivedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&record).Error
}

// MergeShiftSummary upserts the summary, writing only the fields the client
// owns — never a full-document replace — so concurrent administrative edits
// to other fields survive. A locked record rejects the merge with
// ErrRemoteConflict.
func (s *Service) MergeShiftSummary(ctx context.Context, summary shift.Summary) error {
	now := s.clock().UTC().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ShiftSummaryRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("shift_id = ?", summary.ShiftID).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record := summaryRecord(summary, now)
			return tx.Create(&record).Error
		}
		if err != nil {
			return err
		}
		if existing.AdminLocked {
			return ErrRemoteConflict
		}
		updates := summaryUpdates(summary, now)
		return tx.Model(&ShiftSummaryRecord{}).
			Where("shift_id = ?", summary.ShiftID).
			Updates(updates).Error
	})
}

// ListShiftEvents returns the door events of one shift ordered by timestamp,
// ties broken by insertion order.
func (s *Service) ListShiftEvents(ctx context.Context, shiftID string) ([]DoorEventRecord, error) {
	var records []DoorEventRecord
	err := s.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("timestamp_ms ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetShiftSummary returns the stored summary for one shift.
func (s *Service) GetShiftSummary(ctx context.Context, shiftID string) (ShiftSummaryRecord, error) {
	var record ShiftSummaryRecord
	err := s.db.WithContext(ctx).Where("shift_id = ?", shiftID).Take(&record).Error
	return record, err
}

// ListSummariesByDate returns all shift summaries for a calendar date.
func (s *Service) ListSummariesByDate(ctx context.Context, calendarDate string) ([]ShiftSummaryRecord, error) {
	var records []ShiftSummaryRecord
	err := s.db.WithContext(ctx).
		Where("calendar_date = ?", calendarDate).
		Order("rep_id ASC, start_time_s ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SetAdminLock flags or clears an administrative correction on a summary.
func (s *Service) SetAdminLock(ctx context.Context, shiftID string, locked bool) error {
	return s.db.WithContext(ctx).Model(&ShiftSummaryRecord{}).
		Where("shift_id = ?", shiftID).
		Update("admin_locked", locked).Error
}

func summaryRecord(summary shift.Summary, now int64) ShiftSummaryRecord {
	record := ShiftSummaryRecord{
		ShiftID:                   summary.ShiftID,
		RepID:                     summary.RepID,
		CalendarDate:              summary.CalendarDate,
		Doors:                     summary.Doors,
		NoAnswer:                  summary.NoAnswer,
		NoSale:                    summary.NoSale,
		Sales:                     summary.Sales,
		ConversionPercent:         summary.ConversionPercent,
		Miles:                     summary.Miles,
		ActiveMinutes:             summary.ActiveMinutes,
		ManualPausedMinutes:       summary.ManualPausedMinutes,
		InactivityDeductedMinutes: summary.InactivityDeductedMinutes,
		Pay:                       summary.Pay,
		MileageExpense:            summary.MileageExpense,
		TotalOwed:                 summary.TotalOwed,
		StartTimeSeconds:          summary.StartTime.Unix(),
		UpdatedAtSeconds:          now,
	}
	if summary.EndTime != nil {
		end := summary.EndTime.Unix()
		record.EndTimeSeconds = &end
	}
	return record
}

func summaryUpdates(summary shift.Summary, now int64) map[string]interface{} {
	updates := map[string]interface{}{
		"rep_id":                      summary.RepID,
		"calendar_date":               summary.CalendarDate,
		"doors":                       summary.Doors,
		"no_answer":                   summary.NoAnswer,
		"no_sale":                     summary.NoSale,
		"sales":                       summary.Sales,
		"conversion_percent":          summary.ConversionPercent,
		"miles":                       summary.Miles,
		"active_minutes":              summary.ActiveMinutes,
		"manual_paused_minutes":       summary.ManualPausedMinutes,
		"inactivity_deducted_minutes": summary.InactivityDeductedMinutes,
		"pay":                         summary.Pay,
		"mileage_expense":             summary.MileageExpense,
		"total_owed":                  summary.TotalOwed,
		"start_time_s":                summary.StartTime.Unix(),
		"updated_at_s":                now,
	}
	if summary.EndTime != nil {
		updates["end_time_s"] = summary.EndTime.Unix()
	}
	return updates
}

// EventPosition rebuilds the geo fix stored on a door event record.
func (r DoorEventRecord) EventPosition() geo.Fix {
	return geo.Fix{
		Lat:       r.Latitude,
		Lng:       r.Longitude,
		Accuracy:  r.Accuracy,
		Timestamp: time.UnixMilli(r.TimestampMillis).UTC(),
	}
}
