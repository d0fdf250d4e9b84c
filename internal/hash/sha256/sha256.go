// Package sha256 provides content-addressing digests for source documents.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements ingest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash digests the input and returns a tagged hex string, e.g.
// "sha256:9f86d0…". The tag travels with the value because the digest is
// persisted and compared as an opaque dedup key.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:]))
}
