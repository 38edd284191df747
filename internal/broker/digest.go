package broker

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex blake3 hash of contents. The HTTP layer uses it as an
// ETag and writes log it.
func Digest(contents []byte) string {
	sum := blake3.Sum256(contents)
	return hex.EncodeToString(sum[:])
}
