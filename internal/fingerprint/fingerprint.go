// Package fingerprint computes the content fingerprint used for stack change
// detection. The fingerprint is not a content hash of record; it only has to
// be deterministic and collision-resistant enough that "did the deployable
// inputs change" is answerable by string comparison.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Sum digests a stack's deployable inputs: the compose definition followed by
// the optional environment overlay. Each input is length-framed so that a
// definition with no overlay can never collide with a shorter definition plus
// an overlay holding the remaining bytes. A nil overlay (none declared) and an
// empty overlay (declared but empty file) produce different fingerprints.
func Sum(definition, overlay []byte) string {
	h := sha256.New()
	writeFramed(h, definition)
	if overlay != nil {
		writeFramed(h, overlay)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFramed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(b)))
	h.Write(size[:])
	h.Write(b)
}
