package store

import (
	"path/filepath"
	"testing"
)

func TestLegacySaleStatusNormalizedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.db")
	db, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}

	// A record written before the status rename, injected behind the
	// migration's back.
	legacy := DoorEventRecord{
		EventID: "evt-legacy", ShiftID: "shift-1", RepID: "rep-1",
		TimestampMillis: 1, Status: "Sale", ReceivedAtSeconds: 1,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("seeding legacy record: %v", err)
	}
	if err := db.Delete(&migrationRecord{Name: migrationNormalizeLegacySaleStatus}).Error; err != nil {
		t.Fatalf("clearing migration record: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping handle: %v", err)
	}
	sqlDB.Close()

	reopened, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	var record DoorEventRecord
	if err := reopened.Where("event_id = ?", "evt-legacy").Take(&record).Error; err != nil {
		t.Fatalf("reading migrated record: %v", err)
	}
	if record.Status != "SignUp" {
		t.Fatalf("expected the legacy status rewritten, got %q", record.Status)
	}
}

func TestMigrationsAreRecordedAndIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.db")
	db, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("counting migration records: %v", err)
	}
	if count == 0 {
		t.Fatal("expected migration records after open")
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping handle: %v", err)
	}
	sqlDB.Close()

	// Reopening reruns nothing and adds nothing.
	reopened, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	var recount int64
	if err := reopened.Model(&migrationRecord{}).Count(&recount).Error; err != nil {
		t.Fatalf("recounting migration records: %v", err)
	}
	if recount != count {
		t.Fatalf("migration records must be stable across opens: %d then %d", count, recount)
	}
}
