package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/driftlog/driftlog/internal/event"
)

// KeyRing resolves a sender to their known public key. Implementations are
// fed from room metadata; this package never fetches keys itself.
type KeyRing interface {
	// PublicKey returns the sender's key, or false if the sender is unknown.
	PublicKey(senderID string) (ed25519.PublicKey, bool)
}

// StaticKeyRing is an immutable in-memory KeyRing.
type StaticKeyRing map[string]ed25519.PublicKey

// PublicKey implements KeyRing.
func (r StaticKeyRing) PublicKey(senderID string) (ed25519.PublicKey, bool) {
	pk, ok := r[senderID]
	return pk, ok
}

// RingFromBase64 builds a StaticKeyRing from sender -> base64 public key.
func RingFromBase64(keys map[string]string) (StaticKeyRing, error) {
	ring := make(StaticKeyRing, len(keys))
	for sender, b64 := range keys {
		pk, err := ParsePublicKey(b64)
		if err != nil {
			return nil, fmt.Errorf("key for %s: %w", sender, err)
		}
		ring[sender] = pk
	}
	return ring, nil
}

// SignEvent computes the Ed25519 signature over the event's canonical bytes
// and stores it on the event. Any previous signature is replaced.
func SignEvent(e *event.Event, kp *KeyPair) error {
	e.Signature = ""
	data, err := event.SignableBytes(e)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	sig := ed25519.Sign(kp.private, data)
	e.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// VerifyEvent checks the event's signature against the given public key.
// It fails closed: malformed signatures, encoding errors, or key mismatches
// all return false, never an error or panic past this boundary.
func VerifyEvent(e *event.Event, pub ed25519.PublicKey) bool {
	if e.Signature == "" || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	data, err := event.SignableBytes(e)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// VerifyWithRing resolves the claimed sender's key and verifies the event.
// Unknown senders fail closed.
func VerifyWithRing(e *event.Event, ring KeyRing) bool {
	pub, ok := ring.PublicKey(e.SenderID)
	if !ok {
		return false
	}
	return VerifyEvent(e, pub)
}
