// Package live holds the dashboard-side projection of rep positions: a
// typed delta feed and the marker view that consumes it.
package live

import (
	"context"

	"github.com/veranda-labs/canvass/internal/geo"
)

// DeltaType enumerates feed changes.
type DeltaType string

const (
	DeltaAdded    DeltaType = "added"
	DeltaModified DeltaType = "modified"
	DeltaRemoved  DeltaType = "removed"
)

// Delta is one typed change in the live position feed. The view consumes
// this abstraction and is decoupled from whatever transport produced it.
type Delta struct {
	Type     DeltaType       `json:"type"`
	Position geo.RepPosition `json:"position"`
}

// Feed is a subscribable stream of position deltas.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Delta, func())
}

// NameLookup resolves a display name for a rep id. The view caches results
// for the whole session.
type NameLookup interface {
	DisplayName(repID string) (string, error)
}
