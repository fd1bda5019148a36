// Package xid generates prefixed, collision-resistant identifiers for
// ledger entities (credits, payments, shops, audit entries).
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const randomBytes = 8

// New returns an id of the form "<prefix>-<unixnano>-<hex>". The random
// suffix is dropped if crypto/rand is unavailable.
func New(prefix string) string {
	now := time.Now().UnixNano()
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(buf))
}
