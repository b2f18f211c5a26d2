package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cryptofmv/internal/fsutil"
)

// fileDigest is the hex SHA-256 of a file's content.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// markerPath is the zero-byte marker recording that content with this
// digest has been processed.
func markerPath(cacheDir, digest string) string {
	return filepath.Join(cacheDir, "processed_"+digest)
}

func writeMarker(cacheDir, digest string) error {
	return fsutil.WriteFileAtomic(markerPath(cacheDir, digest), nil, 0o644)
}
