package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/shift"
)

func TestUpsertDoorEventIdempotent(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	event := shift.DoorEvent{
		ID:        "event-1",
		ShiftID:   "shift-1",
		Timestamp: time.Unix(1700000100, 0).UTC(),
		Status:    shift.DoorStatusSignUp,
		Position:  geo.Fix{Lat: 33.0, Lng: -96.7},
		RoadName:  "Elm St",
	}

	if err := service.UpsertDoorEvent(ctx, "rep-1", event); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	// Replaying the same id must yield the same remote state, not a duplicate.
	if err := service.UpsertDoorEvent(ctx, "rep-1", event); err != nil {
		t.Fatalf("unexpected replay error: %v", err)
	}

	records, err := service.ListShiftEvents(ctx, "shift-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record after replay, got %d", len(records))
	}
	if records[0].EventID != "event-1" || records[0].RoadName != "Elm St" {
		t.Fatalf("unexpected stored record: %+v", records[0])
	}
}

func TestListShiftEventsOrdersByTimestampThenInsertion(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	events := []shift.DoorEvent{
		{ID: "late", ShiftID: "shift-1", Timestamp: base.Add(2 * time.Minute)},
		{ID: "tie-first", ShiftID: "shift-1", Timestamp: base},
		{ID: "tie-second", ShiftID: "shift-1", Timestamp: base},
	}
	for _, event := range events {
		if err := service.UpsertDoorEvent(ctx, "rep-1", event); err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	records, err := service.ListShiftEvents(ctx, "shift-1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	got := []string{records[0].EventID, records[1].EventID, records[2].EventID}
	want := []string{"tie-first", "tie-second", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestMergeShiftSummaryCreatesAndMerges(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	start := time.Unix(1700000000, 0).UTC()
	summary := shift.Summary{
		ShiftID:      "shift-1",
		RepID:        "rep-1",
		CalendarDate: "2024-03-04",
		Doors:        2,
		Sales:        1,
		StartTime:    start,
	}
	if err := service.MergeShiftSummary(ctx, summary); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	summary.Doors = 5
	end := start.Add(4 * time.Hour)
	summary.EndTime = &end
	if err := service.MergeShiftSummary(ctx, summary); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	stored, err := service.GetShiftSummary(ctx, "shift-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Doors != 5 {
		t.Fatalf("expected merged door count 5, got %d", stored.Doors)
	}
	if stored.EndTimeSeconds == nil || *stored.EndTimeSeconds != end.Unix() {
		t.Fatalf("expected end time to merge, got %+v", stored.EndTimeSeconds)
	}
}

func TestMergeShiftSummaryPreservesAdminFields(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	summary := shift.Summary{
		ShiftID:      "shift-1",
		RepID:        "rep-1",
		CalendarDate: "2024-03-04",
		StartTime:    time.Unix(1700000000, 0).UTC(),
	}
	if err := service.MergeShiftSummary(ctx, summary); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	// A later client merge with no end time must not clear one written by
	// an administrative correction.
	adminEnd := int64(1700020000)
	if err := service.db.Model(&ShiftSummaryRecord{}).
		Where("shift_id = ?", "shift-1").
		Update("end_time_s", adminEnd).Error; err != nil {
		t.Fatalf("unexpected admin update error: %v", err)
	}

	summary.Doors = 3
	if err := service.MergeShiftSummary(ctx, summary); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	stored, err := service.GetShiftSummary(ctx, "shift-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Doors != 3 {
		t.Fatalf("expected client field to merge, got %d", stored.Doors)
	}
	if stored.EndTimeSeconds == nil || *stored.EndTimeSeconds != adminEnd {
		t.Fatalf("merge must not clobber fields it does not carry: %+v", stored.EndTimeSeconds)
	}
}

func TestMergeShiftSummaryRejectsLockedRecord(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	summary := shift.Summary{
		ShiftID:      "shift-1",
		RepID:        "rep-1",
		CalendarDate: "2024-03-04",
		Doors:        2,
		StartTime:    time.Unix(1700000000, 0).UTC(),
	}
	if err := service.MergeShiftSummary(ctx, summary); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}
	if err := service.SetAdminLock(ctx, "shift-1", true); err != nil {
		t.Fatalf("unexpected lock error: %v", err)
	}

	summary.Doors = 99
	err := service.MergeShiftSummary(ctx, summary)
	if !errors.Is(err, ErrRemoteConflict) {
		t.Fatalf("expected ErrRemoteConflict, got %v", err)
	}

	stored, err := service.GetShiftSummary(ctx, "shift-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Doors != 2 {
		t.Fatalf("locked record must stay untouched, got %d doors", stored.Doors)
	}
}

func TestListSummariesByDate(t *testing.T) {
	service := mustService(t)
	ctx := context.Background()

	for i, shiftID := range []string{"shift-1", "shift-2"} {
		summary := shift.Summary{
			ShiftID:      shiftID,
			RepID:        "rep-1",
			CalendarDate: "2024-03-04",
			StartTime:    time.Unix(1700000000+int64(i)*3600, 0).UTC(),
		}
		if err := service.MergeShiftSummary(ctx, summary); err != nil {
			t.Fatalf("unexpected merge error: %v", err)
		}
	}
	other := shift.Summary{
		ShiftID:      "shift-3",
		RepID:        "rep-2",
		CalendarDate: "2024-03-05",
		StartTime:    time.Unix(1700090000, 0).UTC(),
	}
	if err := service.MergeShiftSummary(ctx, other); err != nil {
		t.Fatalf("unexpected merge error: %v", err)
	}

	records, err := service.ListSummariesByDate(ctx, "2024-03-04")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 summaries for the date, got %d", len(records))
	}
}

func mustService(t *testing.T) *Service {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return service
}
