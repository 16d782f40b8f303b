// Package store implements the remote collections behind the sync API:
// immutable door events, merge-only shift summaries, and redis-backed live
// positions.
package store

// DoorEventRecord is one immutable record per logged door. Seq preserves
// insertion order for timestamp ties; EventID is the client-generated
// idempotency key, so replaying the same event is a no-op.
type DoorEventRecord struct {
	Seq               int64   `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID           string  `gorm:"column:event_id;size:190;not null;uniqueIndex:idx_door_events_event_id"`
	ShiftID           string  `gorm:"column:shift_id;size:190;not null;index:idx_door_events_shift,priority:1"`
	RepID             string  `gorm:"column:rep_id;size:190;not null"`
	TimestampMillis   int64   `gorm:"column:timestamp_ms;not null;index:idx_door_events_shift,priority:2"`
	Status            string  `gorm:"column:status;size:16;not null"`
	Latitude          float64 `gorm:"column:latitude;not null"`
	Longitude         float64 `gorm:"column:longitude;not null"`
	Accuracy          float64 `gorm:"column:accuracy;not null;default:0"`
	HouseNumber       string  `gorm:"column:house_number;size:64;not null;default:''"`
	RoadName          string  `gorm:"column:road_name;size:190;not null;default:''"`
	Note              string  `gorm:"column:note;type:text;not null;default:''"`
	ReceivedAtSeconds int64   `gorm:"column:received_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DoorEventRecord) TableName() string {
	return "door_events"
}

// ShiftSummaryRecord is one mutable record per shift. Writes are merges of
// known fields only; AdminLocked marks an administrative correction that
// client merges must not overwrite.
type ShiftSummaryRecord struct {
	ShiftID                   string  `gorm:"column:shift_id;primaryKey;size:190;not null"`
	RepID                     string  `gorm:"column:rep_id;size:190;not null;index:idx_shift_summaries_rep,priority:1"`
	CalendarDate              string  `gorm:"column:calendar_date;size:10;not null;index:idx_shift_summaries_rep,priority:2"`
	Doors                     int     `gorm:"column:doors;not null;default:0"`
	NoAnswer                  int     `gorm:"column:no_answer;not null;default:0"`
	NoSale                    int     `gorm:"column:no_sale;not null;default:0"`
	Sales                     int     `gorm:"column:sales;not null;default:0"`
	ConversionPercent         float64 `gorm:"column:conversion_percent;not null;default:0"`
	Miles                     float64 `gorm:"column:miles;not null;default:0"`
	ActiveMinutes             int     `gorm:"column:active_minutes;not null;default:0"`
	ManualPausedMinutes       int     `gorm:"column:manual_paused_minutes;not null;default:0"`
	InactivityDeductedMinutes int     `gorm:"column:inactivity_deducted_minutes;not null;default:0"`
	Pay                       float64 `gorm:"column:pay;not null;default:0"`
	MileageExpense            float64 `gorm:"column:mileage_expense;not null;default:0"`
	TotalOwed                 float64 `gorm:"column:total_owed;not null;default:0"`
	StartTimeSeconds          int64   `gorm:"column:start_time_s;not null;default:0"`
	EndTimeSeconds            *int64  `gorm:"column:end_time_s"`
	AdminLocked               bool    `gorm:"column:admin_locked;not null;default:false"`
	UpdatedAtSeconds          int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ShiftSummaryRecord) TableName() string {
	return "shift_summaries"
}
