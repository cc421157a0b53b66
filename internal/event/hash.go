package event

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// HashBytes computes the SHA-256 digest of canonical bytes, rendered as
// standard base64 for embedding in prev_event_hash fields.
func HashBytes(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Hash computes the content hash of an event: SHA-256 over the canonical
// encoding of every field except the signature. This is the value a
// sender's next event must carry as its prev_event_hash.
func Hash(e *Event) (string, error) {
	data, err := SignableBytes(e)
	if err != nil {
		return "", fmt.Errorf("hash event %s: %w", e.ID, err)
	}
	return HashBytes(data), nil
}

// MustHash is like Hash but panics on error. Use only in tests or when the
// event is known to be well-formed.
func MustHash(e *Event) string {
	h, err := Hash(e)
	if err != nil {
		panic(err)
	}
	return h
}
