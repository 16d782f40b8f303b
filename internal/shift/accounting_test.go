package shift

import (
	"testing"
	"time"
)

func TestInactivityDeductionSpecScenario(t *testing.T) {
	// Shift 09:00-09:30Z, doors at 09:05 and 09:09, 2 minute threshold.
	// The 4 minute gap between the doors carries 2 unpaid minutes; the
	// lead-in and wrap-up are paid in full, leaving 28 paid minutes.
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T09:30:00Z")
	s := &Shift{
		ShiftID:      "shift-1",
		RepID:        "rep-1",
		CalendarDate: "2024-03-04",
		StartTime:    start,
		EndTime:      &end,
		DoorEvents: []DoorEvent{
			{ID: "a", Timestamp: mustParseTime(t, "2024-03-04T09:05:00Z"), Status: DoorStatusNoAnswer},
			{ID: "b", Timestamp: mustParseTime(t, "2024-03-04T09:09:00Z"), Status: DoorStatusSignUp},
		},
	}
	rates := Rates{AutoPauseThreshold: 2 * time.Minute, PayRatePerHour: 15, MileageRatePerMile: 0.5}

	summary := Summarize(s, rates, end)
	if summary.InactivityDeductedMinutes != 2 {
		t.Fatalf("expected 2 deducted minutes, got %d", summary.InactivityDeductedMinutes)
	}
	if summary.ActiveMinutes != 28 {
		t.Fatalf("expected 28 paid minutes, got %d", summary.ActiveMinutes)
	}
	if summary.Pay != 7.00 {
		t.Fatalf("expected pay 7.00 for 28 minutes at 15/h, got %f", summary.Pay)
	}
}

func TestTrainingShiftDeductsNoInactivity(t *testing.T) {
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T12:00:00Z")
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		Training:  true,
		DoorEvents: []DoorEvent{
			{ID: "a", Timestamp: mustParseTime(t, "2024-03-04T09:10:00Z")},
			{ID: "b", Timestamp: mustParseTime(t, "2024-03-04T11:50:00Z")},
		},
	}

	summary := Summarize(s, Rates{AutoPauseThreshold: 2 * time.Minute}, end)
	if summary.InactivityDeductedMinutes != 0 {
		t.Fatalf("training shifts must deduct zero inactivity, got %d", summary.InactivityDeductedMinutes)
	}
	if summary.ActiveMinutes != 180 {
		t.Fatalf("expected all 180 minutes paid, got %d", summary.ActiveMinutes)
	}
}

func TestManualPauseFullyDeducted(t *testing.T) {
	// Manual pause 10:00-10:10 is deducted in full regardless of door
	// activity around the window.
	start := mustParseTime(t, "2024-03-04T09:30:00Z")
	end := mustParseTime(t, "2024-03-04T10:30:00Z")
	pauseEnd := mustParseTime(t, "2024-03-04T10:10:00Z")
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		Pauses: []Pause{
			{Start: mustParseTime(t, "2024-03-04T10:00:00Z"), End: &pauseEnd, Reason: PauseReasonManual},
		},
		DoorEvents: []DoorEvent{
			{ID: "a", Timestamp: mustParseTime(t, "2024-03-04T09:58:00Z")},
			{ID: "b", Timestamp: mustParseTime(t, "2024-03-04T10:12:00Z")},
		},
	}

	summary := Summarize(s, Rates{AutoPauseThreshold: 2 * time.Minute}, end)
	if summary.ManualPausedMinutes != 10 {
		t.Fatalf("expected 10 manual paused minutes, got %d", summary.ManualPausedMinutes)
	}
	// The 14 minute gap between doors contains the 10 minute pause, so the
	// effective gap is 4 minutes and only 2 exceed the threshold.
	if summary.InactivityDeductedMinutes != 2 {
		t.Fatalf("manual pause must not be double counted: got %d deducted minutes", summary.InactivityDeductedMinutes)
	}
	if summary.ActiveMinutes != 48 {
		t.Fatalf("expected 48 paid minutes, got %d", summary.ActiveMinutes)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T09:30:00Z")
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		Mileage:   3.21,
		DoorEvents: []DoorEvent{
			{ID: "a", Timestamp: mustParseTime(t, "2024-03-04T09:05:00Z"), Status: DoorStatusSignUp},
			{ID: "b", Timestamp: mustParseTime(t, "2024-03-04T09:09:00Z"), Status: DoorStatusNoSale},
		},
	}
	rates := Rates{AutoPauseThreshold: 2 * time.Minute, PayRatePerHour: 18, MileageRatePerMile: 0.655}

	first := Summarize(s, rates, end)
	second := Summarize(s, rates, end)
	if first != second {
		t.Fatalf("summary must be invariant under recomputation:\n%+v\n%+v", first, second)
	}
}

func TestSummarizeMoneyRounding(t *testing.T) {
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T10:00:00Z")
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		Mileage:   10.123,
	}
	rates := Rates{AutoPauseThreshold: 2 * time.Minute, PayRatePerHour: 15.55, MileageRatePerMile: 0.655}

	summary := Summarize(s, rates, end)
	if summary.Pay != 15.55 {
		t.Fatalf("expected pay 15.55, got %f", summary.Pay)
	}
	// 10.123 * 0.655 = 6.630565, half-up to 6.63.
	if summary.MileageExpense != 6.63 {
		t.Fatalf("expected mileage expense 6.63, got %f", summary.MileageExpense)
	}
	// Total is computed from the unrounded terms, then rounded once.
	if summary.TotalOwed != 22.18 {
		t.Fatalf("expected total 22.18, got %f", summary.TotalOwed)
	}
	if summary.Miles != 10.12 {
		t.Fatalf("expected miles rounded to 10.12, got %f", summary.Miles)
	}
}

func TestSummarizeConversionAndCounts(t *testing.T) {
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T10:00:00Z")
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		DoorEvents: []DoorEvent{
			{ID: "a", Timestamp: start.Add(1 * time.Minute), Status: DoorStatusNoAnswer},
			{ID: "b", Timestamp: start.Add(2 * time.Minute), Status: DoorStatusNoSale},
			{ID: "c", Timestamp: start.Add(3 * time.Minute), Status: DoorStatusSignUp},
		},
	}

	summary := Summarize(s, Rates{AutoPauseThreshold: time.Hour}, end)
	if summary.Doors != 3 || summary.NoAnswer != 1 || summary.NoSale != 1 || summary.Sales != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.ConversionPercent != 33.3 {
		t.Fatalf("expected conversion 33.3, got %f", summary.ConversionPercent)
	}
}

func TestPaidMinutesClampedAtZero(t *testing.T) {
	start := mustParseTime(t, "2024-03-04T09:00:00Z")
	end := mustParseTime(t, "2024-03-04T09:10:00Z")
	pauseEnd := end
	// Clock skew can produce a pause opened before the recorded start.
	s := &Shift{
		StartTime: start,
		EndTime:   &end,
		Pauses: []Pause{
			{Start: mustParseTime(t, "2024-03-04T08:55:00Z"), End: &pauseEnd, Reason: PauseReasonManual},
		},
	}

	summary := Summarize(s, Rates{AutoPauseThreshold: time.Minute}, end)
	if summary.ActiveMinutes != 0 {
		t.Fatalf("paid minutes must clamp at zero, got %d", summary.ActiveMinutes)
	}
	if summary.Pay != 0 {
		t.Fatalf("expected zero pay, got %f", summary.Pay)
	}
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("unexpected time parse error: %v", err)
	}
	return parsed
}
