package shift

import (
	"math"
	"time"
)

// Rates carries the configurable accounting inputs from the rep profile or
// territory record.
type Rates struct {
	AutoPauseThreshold time.Duration
	PayRatePerHour     float64
	MileageRatePerMile float64
}

// Summary is the derived accounting view of a shift. It is recomputed from
// the full event history whenever it is needed and never stored, so deriving
// it twice from the same history yields identical numbers.
type Summary struct {
	ShiftID                   string  `json:"shiftId"`
	RepID                     string  `json:"repId"`
	CalendarDate              string  `json:"date"`
	Doors                     int     `json:"doors"`
	NoAnswer                  int     `json:"x"`
	NoSale                    int     `json:"o"`
	Sales                     int     `json:"sales"`
	ConversionPercent         float64 `json:"conversionPercent"`
	Miles                     float64 `json:"miles"`
	ActiveMinutes             int     `json:"activeMinutes"`
	ManualPausedMinutes       int     `json:"manualPausedMinutes"`
	InactivityDeductedMinutes int     `json:"inactivityDeductedMinutes"`
	Pay                       float64 `json:"pay"`
	MileageExpense            float64 `json:"mileageExpense"`
	TotalOwed                 float64 `json:"totalOwed"`
	StartTime                 time.Time  `json:"startTime"`
	EndTime                   *time.Time `json:"endTime,omitempty"`
}

// ManualPausedDuration sums the manual pauses of the shift, closing any open
// pause at the reference instant.
func ManualPausedDuration(s *Shift, now time.Time) time.Duration {
	var total time.Duration
	for _, pause := range s.Pauses {
		if pause.Reason != PauseReasonManual {
			continue
		}
		end := now
		if pause.End != nil {
			end = *pause.End
		}
		if end.After(pause.Start) {
			total += end.Sub(pause.Start)
		}
	}
	return total
}

// InactivityDeduction derives the unpaid inactivity for the shift: for each
// gap between consecutive door events, the portion beyond the threshold is
// unpaid. Time the rep explicitly paused inside a gap is subtracted from the
// gap before the threshold applies, so manual pauses are never double
// counted. Training shifts deduct nothing. The lead-in before the first door
// and the wrap-up after the last one are paid in full; shift start and end
// only bound the history, they do not open deductible gaps.
func InactivityDeduction(s *Shift, threshold time.Duration, now time.Time) time.Duration {
	if s.Training || threshold <= 0 || len(s.DoorEvents) < 2 {
		return 0
	}

	var total time.Duration
	for i := 1; i < len(s.DoorEvents); i++ {
		gapStart := s.DoorEvents[i-1].Timestamp
		gapEnd := s.DoorEvents[i].Timestamp
		if !gapEnd.After(gapStart) {
			continue
		}
		gap := gapEnd.Sub(gapStart) - manualOverlap(s, gapStart, gapEnd, now)
		if gap > threshold {
			total += gap - threshold
		}
	}
	return total
}

// manualOverlap returns how much manual-paused time falls inside [from, to).
func manualOverlap(s *Shift, from, to, now time.Time) time.Duration {
	var total time.Duration
	for _, pause := range s.Pauses {
		if pause.Reason != PauseReasonManual {
			continue
		}
		end := now
		if pause.End != nil {
			end = *pause.End
		}
		start := pause.Start
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}

// Summarize derives the accounting summary for a shift. For a still-active
// shift, now stands in for the end time. Monetary values are computed last
// and rounded half-up to two decimal places so rounding never compounds.
func Summarize(s *Shift, rates Rates, now time.Time) Summary {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	span := end.Sub(s.StartTime)
	if span < 0 {
		span = 0
	}

	manual := ManualPausedDuration(s, end)
	inactivity := InactivityDeduction(s, rates.AutoPauseThreshold, end)

	paid := span - manual - inactivity
	if paid < 0 {
		paid = 0
	}
	paidMinutes := int(math.Round(float64(paid.Milliseconds()) / 60000))

	doors, noAnswer, noSale, signUps := s.Counts()
	conversion := 0.0
	if doors > 0 {
		conversion = roundTo(float64(signUps)/float64(doors)*100, 1)
	}

	pay := float64(paidMinutes) / 60 * rates.PayRatePerHour
	expense := s.Mileage * rates.MileageRatePerMile

	return Summary{
		ShiftID:                   s.ShiftID,
		RepID:                     s.RepID,
		CalendarDate:              s.CalendarDate,
		Doors:                     doors,
		NoAnswer:                  noAnswer,
		NoSale:                    noSale,
		Sales:                     signUps,
		ConversionPercent:         conversion,
		Miles:                     roundTo(s.Mileage, 2),
		ActiveMinutes:             paidMinutes,
		ManualPausedMinutes:       int(math.Round(float64(manual.Milliseconds()) / 60000)),
		InactivityDeductedMinutes: int(math.Round(float64(inactivity.Milliseconds()) / 60000)),
		Pay:                       roundTo(pay, 2),
		MileageExpense:            roundTo(expense, 2),
		TotalOwed:                 roundTo(pay+expense, 2),
		StartTime:                 s.StartTime,
		EndTime:                   s.EndTime,
	}
}

// roundTo rounds half-up to the given number of decimal places.
func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Floor(value*factor+0.5) / factor
}
