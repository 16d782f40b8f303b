// Package geo provides position acquisition and great-circle mileage
// accounting for rep clients.
package geo

import (
	"errors"
	"time"
)

// ErrPositionUnavailable indicates the underlying location source could not
// produce a fix. The caller decides whether to retry, skip, or fall back to
// the last known position; no fix is ever fabricated.
var ErrPositionUnavailable = errors.New("geo: position unavailable")

// Fix is a single position sample from the device location source.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Zero reports whether the fix carries no coordinates at all.
func (f Fix) Zero() bool {
	return f.Lat == 0 && f.Lng == 0 && f.Timestamp.IsZero()
}
