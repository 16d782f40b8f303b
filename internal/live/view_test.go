package live

import (
	"errors"
	"testing"
	"time"

	"github.com/veranda-labs/canvass/internal/geo"
)

type staticNames struct {
	names   map[string]string
	lookups int
	err     error
}

func (s *staticNames) DisplayName(repID string) (string, error) {
	s.lookups++
	if s.err != nil {
		return "", s.err
	}
	return s.names[repID], nil
}

func TestFirstFreshSightingRefitsViewport(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Clock:           func() time.Time { return now },
	})

	update := view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.00, -96.70, now, true)})
	if !update.Refit {
		t.Fatal("first sighting of a rep must refit the viewport")
	}

	// Moving the same rep must not pan the map again.
	update = view.Apply(Delta{Type: DeltaModified, Position: position("rep-1", 33.01, -96.71, now, true)})
	if update.Refit {
		t.Fatal("subsequent updates must move the marker without refitting")
	}

	// A second rep is a first sighting again; the bounds cover both.
	update = view.Apply(Delta{Type: DeltaAdded, Position: position("rep-2", 33.05, -96.60, now, true)})
	if !update.Refit {
		t.Fatal("first sighting of another rep must refit")
	}
	if update.Bounds.MinLat != 33.01 || update.Bounds.MaxLat != 33.05 {
		t.Fatalf("bounds should cover all fresh markers: %+v", update.Bounds)
	}
	if update.Bounds.MinLng != -96.71 || update.Bounds.MaxLng != -96.60 {
		t.Fatalf("bounds should cover all fresh markers: %+v", update.Bounds)
	}
}

func TestStaleMarkerIsNeverRendered(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Clock:           func() time.Time { return now },
	})

	// Fresh on the previous update.
	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now.Add(-4*time.Minute), true)})
	if len(view.Markers()) != 1 {
		t.Fatal("expected a fresh marker")
	}

	// Time passes; the same record ages out of the freshness window.
	now = now.Add(3 * time.Minute)
	if len(view.Markers()) != 0 {
		t.Fatal("a marker older than the freshness window must be evicted")
	}
}

func TestUpdateOlderThanWindowIsEvictedImmediately(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Clock:           func() time.Time { return now },
	})

	update := view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now.Add(-6*time.Minute), true)})
	if update.Refit {
		t.Fatal("a stale position must not refit the viewport")
	}
	if len(view.Markers()) != 0 {
		t.Fatal("a stale position must not be rendered")
	}
}

func TestExplicitlyInactiveRecordIsEvicted(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Clock:           func() time.Time { return now },
	})

	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	// Graceful sign-off: record stays but is marked inactive.
	view.Apply(Delta{Type: DeltaModified, Position: position("rep-1", 33.0, -96.7, now, false)})
	if len(view.Markers()) != 0 {
		t.Fatal("an explicitly inactive record must be removed from the map")
	}
}

func TestRemovedDeltaDropsMarker(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Clock:           func() time.Time { return now },
	})

	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	view.Apply(Delta{Type: DeltaRemoved, Position: geo.RepPosition{RepID: "rep-1"}})
	if len(view.Markers()) != 0 {
		t.Fatal("removed delta must drop the marker")
	}

	// The rep coming back counts as a first sighting again.
	update := view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	if !update.Refit {
		t.Fatal("re-appearing rep should refit the viewport")
	}
}

func TestDisplayNameCachedForSession(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	names := &staticNames{names: map[string]string{"rep-1": "Jordan"}}
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Names:           names,
		Clock:           func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		view.Apply(Delta{Type: DeltaModified, Position: position("rep-1", 33.0, -96.7, now, true)})
	}
	if names.lookups != 1 {
		t.Fatalf("expected a single lookup per session, got %d", names.lookups)
	}
	markers := view.Markers()
	if len(markers) != 1 || markers[0].DisplayName != "Jordan" {
		t.Fatalf("unexpected markers: %+v", markers)
	}
}

func TestDisplayNameLookupFailureFallsBackToRepID(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	names := &staticNames{err: errors.New("directory offline")}
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Names:           names,
		Clock:           func() time.Time { return now },
	})

	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	markers := view.Markers()
	if len(markers) != 1 || markers[0].DisplayName != "rep-1" {
		t.Fatalf("expected rep id fallback, got %+v", markers)
	}
}

func TestResetClearsMarkersButKeepsNameCache(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	names := &staticNames{names: map[string]string{"rep-1": "Jordan"}}
	view := mustView(t, ViewConfig{
		FreshnessWindow: 5 * time.Minute,
		Names:           names,
		Clock:           func() time.Time { return now },
	})

	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	view.Reset()
	if len(view.Markers()) != 0 {
		t.Fatal("reset must clear the marker set")
	}

	view.Apply(Delta{Type: DeltaAdded, Position: position("rep-1", 33.0, -96.7, now, true)})
	if names.lookups != 1 {
		t.Fatalf("name cache must survive reset, got %d lookups", names.lookups)
	}
}

func position(repID string, lat, lng float64, at time.Time, active bool) geo.RepPosition {
	return geo.RepPosition{
		RepID:  repID,
		Fix:    geo.Fix{Lat: lat, Lng: lng, Timestamp: at},
		Active: active,
	}
}

func mustView(t *testing.T, cfg ViewConfig) *View {
	t.Helper()
	view, err := NewView(cfg)
	if err != nil {
		t.Fatalf("unexpected view error: %v", err)
	}
	return view
}
