package catalog

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// Checksum computes the SHA-1 of a file encoded as base64, the format the
// Immich duplicate check expects.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	h := sha1.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
