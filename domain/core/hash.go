package core

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// Fingerprint is a content hash of an input file, recorded in run manifests
// so a figure can be traced back to the exact bytes it was computed from.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// IsEmpty checks if the fingerprint is empty
func (f Fingerprint) IsEmpty() bool {
	return f == ""
}

// NewFingerprint hashes data with xxhash64.
func NewFingerprint(data []byte) Fingerprint {
	return Fingerprint(fmt.Sprintf("%016x", xxhash.Sum64(data)))
}

// FingerprintReader hashes everything readable from r.
func FingerprintReader(r io.Reader) (Fingerprint, int64, error) {
	h := xxhash.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return Fingerprint(fmt.Sprintf("%016x", h.Sum64())), n, nil
}

// FingerprintFile hashes a file on disk and returns its size.
func FingerprintFile(path string) (Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return FingerprintReader(f)
}
