package catalog

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const editedSuffix = "_edited"

// copyPattern matches exporter duplicate renditions like "IMG_0001 (1)".
var copyPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

var photoExtensions = map[string]struct{}{
	".heic": {}, ".jpg": {}, ".jpeg": {}, ".png": {},
	".dng": {}, ".raf": {}, ".cr2": {}, ".arw": {},
}

var videoExtensions = map[string]struct{}{
	".mov": {}, ".mp4": {}, ".m4v": {},
}

// mediaForExt reports the media class for a file extension, if recognized.
func mediaForExt(ext string) (Media, bool) {
	ext = strings.ToLower(ext)
	if _, ok := photoExtensions[ext]; ok {
		return MediaPhoto, true
	}
	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo, true
	}
	return "", false
}

// NormalizeStem lowercases a filename stem and folds it to Unicode NFC so
// that macOS NFD exports compare equal to server-side names.
func NormalizeStem(stem string) string {
	return strings.ToLower(norm.NFC.String(stem))
}

// classify derives the variant kind and base stem from a filename stem.
// The "_edited" suffix marks the edited rendition; a " (N)" copy suffix
// marks a derivative duplicate of the same logical photo.
func classify(stem string) (Variant, string) {
	normalized := NormalizeStem(stem)
	if base, ok := strings.CutSuffix(normalized, editedSuffix); ok && base != "" {
		return VariantEdited, base
	}
	if m := copyPattern.FindStringSubmatch(normalized); m != nil && m[1] != "" {
		return VariantDerivative, m[1]
	}
	return VariantOriginal, normalized
}

// BaseKeyFor derives the identity key shared by every variant of one logical
// photo: the containing directory plus the variant-stripped stem.
func BaseKeyFor(path string) (Variant, string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	variant, base := classify(stem)
	return variant, filepath.Join(filepath.Dir(path), base)
}
