package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const sidecarTemplate = `<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description xmlns:exif="http://ns.adobe.com/exif/1.0/"
    exif:DateTimeOriginal=%q/>
 </rdf:RDF>
</x:xmpmeta>`

// WriteMedia writes a media file with the given contents and a sidecar
// carrying the capture timestamp, building an export-tree fixture.
func WriteMedia(t testing.TB, root, name, contents, capturedAt string) string {
	t.Helper()

	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	sidecar := fmt.Sprintf(sidecarTemplate, capturedAt)
	if err := os.WriteFile(path+".xmp", []byte(sidecar), 0o644); err != nil {
		t.Fatalf("write sidecar for %s: %v", name, err)
	}
	return path
}
