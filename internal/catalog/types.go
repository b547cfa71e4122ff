package catalog

import (
	"fmt"
	"time"
)

// Variant identifies which rendition of a logical photo a file is.
type Variant string

const (
	VariantOriginal   Variant = "original"
	VariantEdited     Variant = "edited"
	VariantDerivative Variant = "derivative"
)

// Media identifies the broad media class of an asset.
type Media string

const (
	MediaPhoto Media = "photo"
	MediaVideo Media = "video"
)

// Asset is one exported media file with its derived metadata. Capture
// timestamps come from the XMP sidecar, never from filesystem times; the
// sidecar carries the timezone correction that motivates the whole run.
type Asset struct {
	Path       string
	Checksum   string
	CapturedAt time.Time
	Variant    Variant
	BaseKey    string
	Size       int64
	Media      Media
}

// Identity returns the stable checksum+path key used by the run-state ledger.
func (a Asset) Identity() string {
	return a.Checksum + "|" + a.Path
}

// ScanIssue records a per-file failure that did not abort the scan.
type ScanIssue struct {
	Path string
	Err  error
}

func (i ScanIssue) String() string {
	return fmt.Sprintf("%s: %v", i.Path, i.Err)
}
