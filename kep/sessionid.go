package kep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SessionID computes the deterministic session identifier for an
// unordered pair of user ids (§3 "Session"): lowercase-hex of the first 16
// bytes of SHA-256("<uidA>:<uidB>:session") with uidA < uidB lexically.
func SessionID(uidA, uidB string) string {
	lo, hi := uidA, uidB
	if hi < lo {
		lo, hi = hi, lo
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:session", lo, hi)))
	return hex.EncodeToString(sum[:16])
}
