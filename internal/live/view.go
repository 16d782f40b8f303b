package live

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
)

// Marker is the ephemeral projection of one rep on the map. It is rebuilt
// from the feed on every update and never persisted.
type Marker struct {
	RepID       string    `json:"repId"`
	DisplayName string    `json:"displayName"`
	Position    geo.Fix   `json:"position"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Bounds is the box enclosing a set of markers, used to fit the viewport.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Update describes what the map should do after applying a delta. Refit is
// set only on the first fresh sighting of a rep; later updates move the
// marker in place to avoid disorienting panning.
type Update struct {
	Refit  bool
	Bounds Bounds
}

// ViewConfig describes the dependencies for a View.
type ViewConfig struct {
	FreshnessWindow time.Duration
	Names           NameLookup
	Clock           func() time.Time
	Logger          *zap.Logger
}

// View maintains the live marker set. A position is rendered only while it
// is fresh (now − timestamp ≤ freshness window) and not explicitly marked
// inactive; anything else is evicted rather than left stale on the map.
type View struct {
	window  time.Duration
	names   NameLookup
	clock   func() time.Time
	logger  *zap.Logger
	markers map[string]Marker
	cache   map[string]string
}

// NewView constructs an empty live view.
func NewView(cfg ViewConfig) (*View, error) {
	if cfg.FreshnessWindow <= 0 {
		return nil, fmt.Errorf("live: freshness window must be positive")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		window:  cfg.FreshnessWindow,
		names:   cfg.Names,
		clock:   clock,
		logger:  logger,
		markers: make(map[string]Marker),
		cache:   make(map[string]string),
	}, nil
}

// Apply folds one feed delta into the marker set.
func (v *View) Apply(delta Delta) Update {
	now := v.clock().UTC()
	v.evictStale(now)

	repID := delta.Position.RepID
	switch delta.Type {
	case DeltaRemoved:
		delete(v.markers, repID)
		return Update{}
	case DeltaAdded, DeltaModified:
		if !delta.Position.Active || v.stale(delta.Position.Fix.Timestamp, now) {
			delete(v.markers, repID)
			return Update{}
		}
		_, present := v.markers[repID]
		v.markers[repID] = Marker{
			RepID:       repID,
			DisplayName: v.displayName(repID),
			Position:    delta.Position.Fix,
			LastSeen:    delta.Position.Fix.Timestamp,
		}
		if !present {
			return Update{Refit: true, Bounds: v.bounds()}
		}
		return Update{}
	default:
		v.logger.Warn("ignoring unknown feed delta", zap.String("type", string(delta.Type)))
		return Update{}
	}
}

// Markers returns the fresh markers sorted by rep id.
func (v *View) Markers() []Marker {
	v.evictStale(v.clock().UTC())
	markers := make([]Marker, 0, len(v.markers))
	for _, marker := range v.markers {
		markers = append(markers, marker)
	}
	sort.Slice(markers, func(i, j int) bool {
		return markers[i].RepID < markers[j].RepID
	})
	return markers
}

// Reset clears the marker set. Exiting replay mode rebuilds live rendering
// from scratch instead of merging stale markers back in. The name cache
// survives for the rest of the session.
func (v *View) Reset() {
	v.markers = make(map[string]Marker)
}

func (v *View) stale(timestamp time.Time, now time.Time) bool {
	return now.Sub(timestamp) > v.window
}

func (v *View) evictStale(now time.Time) {
	for repID, marker := range v.markers {
		if v.stale(marker.LastSeen, now) {
			delete(v.markers, repID)
		}
	}
}

func (v *View) displayName(repID string) string {
	if name, ok := v.cache[repID]; ok {
		return name
	}
	name := repID
	if v.names != nil {
		resolved, err := v.names.DisplayName(repID)
		if err != nil {
			v.logger.Warn("display name lookup failed",
				zap.String("rep_id", repID),
				zap.Error(err))
		} else if resolved != "" {
			name = resolved
		}
	}
	v.cache[repID] = name
	return name
}

func (v *View) bounds() Bounds {
	bounds := Bounds{}
	first := true
	for _, marker := range v.markers {
		if first {
			bounds = Bounds{
				MinLat: marker.Position.Lat,
				MaxLat: marker.Position.Lat,
				MinLng: marker.Position.Lng,
				MaxLng: marker.Position.Lng,
			}
			first = false
			continue
		}
		if marker.Position.Lat < bounds.MinLat {
			bounds.MinLat = marker.Position.Lat
		}
		if marker.Position.Lat > bounds.MaxLat {
			bounds.MaxLat = marker.Position.Lat
		}
		if marker.Position.Lng < bounds.MinLng {
			bounds.MinLng = marker.Position.Lng
		}
		if marker.Position.Lng > bounds.MaxLng {
			bounds.MaxLng = marker.Position.Lng
		}
	}
	return bounds
}
