package geo

import "math"

// Mean Earth radius in miles. Mileage is accumulated in miles because pay
// rates are expressed per mile.
const earthRadiusMiles = 3958.8

// Haversine returns the great-circle distance between two fixes in miles.
// This is a straight-line approximation between samples: any travel that
// deviates from a straight line between consecutive fixes is undercounted.
func Haversine(a, b Fix) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

// Odometer accumulates straight-line mileage across consecutive fixes.
// The running total never decreases.
type Odometer struct {
	last    Fix
	hasLast bool
	total   float64
}

// NewOdometer returns an odometer with zero accumulated mileage.
func NewOdometer() *Odometer {
	return &Odometer{}
}

// Advance records a new fix and returns the updated total. The first fix
// establishes the reference point and contributes no distance.
func (o *Odometer) Advance(fix Fix) float64 {
	if o.hasLast {
		o.total += Haversine(o.last, fix)
	}
	o.last = fix
	o.hasLast = true
	return o.total
}

// Total returns the accumulated mileage in miles.
func (o *Odometer) Total() float64 {
	return o.total
}

// LastFix returns the most recent fix and whether one has been recorded.
func (o *Odometer) LastFix() (Fix, bool) {
	return o.last, o.hasLast
}

// Reset clears the total and the reference fix for a new shift.
func (o *Odometer) Reset() {
	o.last = Fix{}
	o.hasLast = false
	o.total = 0
}
