package intake

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the dedup hash for a submission: sha256 over
// the canonical source URL when one exists, otherwise over the
// title+body text. Re-submission of the same upstream item is caught
// even when it arrives through a different route, and identical ad-hoc
// content collides without any external id at all.
func Fingerprint(sourceURL, title, body string) string {
	basis := sourceURL
	if basis == "" {
		basis = title + "\n" + body
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}
