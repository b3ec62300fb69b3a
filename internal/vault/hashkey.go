package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashKeySep separates natural-key parts before hashing so that
// ("ab","c") and ("a","bc") never collide.
const hashKeySep = "\x1f"

// DeriveHashKey computes the stable surrogate key for one or more
// ordered natural-key strings: the SHA-256 digest of the parts joined
// by a unit separator, rendered as 64 lowercase hex characters. It is
// pure and deterministic across restarts - there is no salt - so the
// same username always maps to the same key. Keys derived this way are
// join keys, not secrets.
func DeriveHashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, hashKeySep)))
	return hex.EncodeToString(sum[:])
}
