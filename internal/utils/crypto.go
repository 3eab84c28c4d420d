// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/zeebo/blake3"
)

const (
	base36Alphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
	draftIDSuffixLen = 7
	localTxPrefix    = "local_tx_"
)

// NewDraftID returns draft_<millis>_<7 base36 chars> for the given creation time.
func NewDraftID(createdAt time.Time) string {
	return fmt.Sprintf("draft_%d_%s", createdAt.UnixMilli(), RandomBase36(draftIDSuffixLen))
}

// RandomBase36 returns n random lowercase base36 characters.
func RandomBase36(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		buf[i] = base36Alphabet[idx.Int64()]
	}
	return string(buf)
}

// LocalTxHash synthesizes the confirmation token for a locally persisted draft:
// local_tx_ followed by the first 16 hex chars of BLAKE3(id || content).
func LocalTxHash(id, content string) string {
	h := blake3.New()
	h.Write([]byte(id))
	h.Write([]byte(content))
	sum := h.Sum(nil)
	return localTxPrefix + hex.EncodeToString(sum[:8])
}
