package catalog

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Sidecar holds the metadata retake reads from an XMP sidecar.
type Sidecar struct {
	CapturedAt time.Time
}

var errNoCaptureTime = errors.New("sidecar has no capture timestamp")

// sidecarFields lists the XMP properties that can carry the capture time,
// in priority order.
var sidecarFields = []string{"DateTimeOriginal", "DateCreated", "CreateDate"}

// SidecarPath returns the sidecar file for a media path, trying the
// full-name form (IMG_0001.JPG.xmp) before the stem form (IMG_0001.xmp).
func SidecarPath(mediaPath string) (string, bool) {
	full := mediaPath + ".xmp"
	if _, err := os.Stat(full); err == nil {
		return full, true
	}
	if ext := lastDot(mediaPath); ext > 0 {
		stemForm := mediaPath[:ext] + ".xmp"
		if _, err := os.Stat(stemForm); err == nil {
			return stemForm, true
		}
	}
	return "", false
}

func lastDot(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			return i
		case '/', '\\':
			return -1
		}
	}
	return -1
}

// ParseSidecar reads an XMP sidecar and extracts the capture timestamp.
// Values without an explicit timezone offset are rejected: the offset
// correction is the reason the export exists, so guessing would defeat it.
func ParseSidecar(path string) (Sidecar, error) {
	file, err := os.Open(path)
	if err != nil {
		return Sidecar{}, fmt.Errorf("open sidecar: %w", err)
	}
	defer file.Close()
	return decodeSidecar(file)
}

func decodeSidecar(r io.Reader) (Sidecar, error) {
	found := map[string]string{}

	decoder := xml.NewDecoder(r)
	var pendingField string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Sidecar{}, fmt.Errorf("parse sidecar xml: %w", err)
		}
		switch tok := token.(type) {
		case xml.StartElement:
			pendingField = ""
			if isCaptureField(tok.Name.Local) {
				pendingField = tok.Name.Local
			}
			for _, attr := range tok.Attr {
				if isCaptureField(attr.Name.Local) && strings.TrimSpace(attr.Value) != "" {
					recordField(found, attr.Name.Local, attr.Value)
				}
			}
		case xml.CharData:
			if pendingField != "" {
				if value := strings.TrimSpace(string(tok)); value != "" {
					recordField(found, pendingField, value)
				}
			}
		case xml.EndElement:
			pendingField = ""
		}
	}

	for _, field := range sidecarFields {
		if raw, ok := found[field]; ok {
			ts, err := parseSidecarTime(raw)
			if err != nil {
				return Sidecar{}, fmt.Errorf("%s: %w", field, err)
			}
			return Sidecar{CapturedAt: ts}, nil
		}
	}
	return Sidecar{}, errNoCaptureTime
}

func isCaptureField(name string) bool {
	for _, field := range sidecarFields {
		if name == field {
			return true
		}
	}
	return false
}

func recordField(found map[string]string, name, value string) {
	if _, exists := found[name]; !exists {
		found[name] = strings.TrimSpace(value)
	}
}

// sidecarTimeLayouts covers the datetime shapes emitted by XMP writers.
// Every layout carries an explicit offset.
var sidecarTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999-0700",
	"2006:01:02 15:04:05.999999999-07:00",
	"2006:01:02 15:04:05-07:00",
	"2006:01:02 15:04:05-0700",
}

func parseSidecarTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range sidecarTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("capture timestamp %q lacks a parseable timezone offset", raw)
}
