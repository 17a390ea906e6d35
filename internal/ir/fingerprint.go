package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for content-addressed node identity. The version suffix
// enables future algorithm migration without colliding with old hashes.
const domainNode = "quarry/node/v1"

// fingerprint computes the content hash of a node from its kind, its scalar
// parameters and the fingerprints of its children. Separator bytes keep
// field and child boundaries unambiguous. Children are hashed by their own
// fingerprints, so the hash of a tree is stable under structural sharing.
func fingerprint(kind Kind, params []string, children ...Node) string {
	h := sha256.New()
	h.Write([]byte(domainNode))
	h.Write([]byte{0x00})
	h.Write([]byte(kind.String()))
	for _, p := range params {
		h.Write([]byte{0x1f})
		h.Write([]byte(p))
	}
	for _, c := range children {
		h.Write([]byte{0x1e})
		h.Write([]byte(c.Fingerprint()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalName NFC-normalizes an identifier before it participates in a
// fingerprint, so visually identical names hash identically regardless of
// the Unicode composition the caller used.
func canonicalName(s string) string {
	return norm.NFC.String(s)
}
