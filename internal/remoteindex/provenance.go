package remoteindex

import (
	"regexp"
	"strings"
)

// The classifier keeps every provenance heuristic in one place so matching
// logic never compares raw client strings.

var mobileModelPattern = regexp.MustCompile(`(?i)\b(iphone|ipad|ipod|pixel|galaxy|oneplus|xiaomi|huawei|motorola)\b|^sm-`)

var desktopDeviceIDs = map[string]struct{}{
	"cli":    {},
	"retake": {},
	"web":    {},
}

// ClassifyProvenance maps free-form device/client strings to a closed set of
// provenance variants. deviceID is the uploading client's identifier (the
// Immich CLI reports "CLI"); model is the camera model from EXIF.
func ClassifyProvenance(deviceID, cameraMake, model string) Provenance {
	id := strings.ToLower(strings.TrimSpace(deviceID))
	if _, ok := desktopDeviceIDs[id]; ok {
		return ProvenanceDesktop
	}

	device := strings.TrimSpace(cameraMake + " " + model)
	if mobileModelPattern.MatchString(device) {
		return ProvenanceMobile
	}
	// The mobile app uses an opaque per-device identifier; a phone-model
	// EXIF string is the stronger signal, so anything else stays unknown.
	return ProvenanceUnknown
}
