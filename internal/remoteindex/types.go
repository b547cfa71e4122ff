package remoteindex

import (
	"time"

	"retake/internal/catalog"
)

// Provenance is the inferred originating client of a remote asset.
type Provenance string

const (
	ProvenanceMobile  Provenance = "mobile"
	ProvenanceDesktop Provenance = "desktop"
	ProvenanceUnknown Provenance = "unknown"
)

// Asset is the engine's snapshot of a remote asset. The remote copy is the
// source of truth; this copy only feeds matching and planning.
type Asset struct {
	ID           string
	Checksum     string
	FileName     string
	CapturedAt   time.Time
	Size         int64
	Media        catalog.Media
	AlbumIDs     []string
	Favorite     bool
	Provenance   Provenance
	StackID      string
	StackPrimary bool
}

// Stem returns the normalized filename stem used for proximity matching.
func (a *Asset) Stem() string {
	name := a.FileName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			name = name[:i]
			break
		}
	}
	return catalog.NormalizeStem(name)
}
