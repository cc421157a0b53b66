// Package chain implements the per-sender hash-chain state machine.
//
// Each sender's events form a chain: every event carries the hash of that
// sender's previous event, so omission or reordering of a sender's history
// is detectable without any central authority. The validator must be fed a
// sender's events in ascending timestamp order; the merger guarantees that
// ordering before calling in.
package chain

import (
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/identity"
)

// Status is the verification annotation attached to each timeline event.
type Status string

const (
	// StatusVerified: signature valid and chain link intact.
	StatusVerified Status = "verified"

	// StatusBadSignature: the event fails signature verification under the
	// claimed sender's key, or the sender has no known key. Such events are
	// rejected from the verified stream and never advance a chain.
	StatusBadSignature Status = "bad_signature"

	// StatusChainBroken: signature valid but prev_event_hash does not match
	// the sender's verified tip. The event is retained and flagged; this
	// can be two devices racing, not necessarily malice.
	StatusChainBroken Status = "chain_broken"

	// StatusUnverifiedChain: signature valid, but an earlier event broke
	// this sender's chain, so linkage cannot be trusted until the fork is
	// resolved. Not excluded from state resolution by default.
	StatusUnverifiedChain Status = "unverified-chain"
)

// Break records one chain break for the anomaly report.
type Break struct {
	SenderID    string `json:"sender_id"`
	EventID     string `json:"event_id"`
	TimestampMS int64  `json:"timestamp_ms"`
	WantPrev    string `json:"want_prev_hash"`
	GotPrev     string `json:"got_prev_hash"`
}

// senderChain is the rolling verification state for one sender:
// no history, or a tip (hash, timestamp), plus a sticky broken flag.
type senderChain struct {
	hasTip  bool
	tipHash string
	tipTS   int64
	broken  bool
}

// Validator replays events through per-sender chains. It is not safe for
// concurrent use; the merge step is a single-threaded reduction.
type Validator struct {
	ring    identity.KeyRing
	senders map[string]*senderChain
	breaks  []Break
}

// NewValidator creates a validator resolving keys through ring.
func NewValidator(ring identity.KeyRing) *Validator {
	return &Validator{
		ring:    ring,
		senders: make(map[string]*senderChain),
	}
}

// Observe feeds the next event for its sender, which must be the sender's
// earliest not-yet-observed event by (timestamp_ms, event_id). It returns
// the event's verification status.
//
// Events failing signature verification do not advance the sender's chain
// and do not count as the first event: a forger must not be able to break
// an honest sender's chain.
func (v *Validator) Observe(e *event.Event) Status {
	if !identity.VerifyWithRing(e, v.ring) {
		return StatusBadSignature
	}

	sc := v.senders[e.SenderID]
	if sc == nil {
		sc = &senderChain{}
		v.senders[e.SenderID] = sc
	}

	hash, err := event.Hash(e)
	if err != nil {
		// Unreachable after a successful verify, which hashed the same
		// bytes; fail closed regardless.
		return StatusBadSignature
	}

	if sc.broken {
		sc.tipHash = hash
		sc.tipTS = e.TimestampMS
		return StatusUnverifiedChain
	}

	want := ""
	if sc.hasTip {
		want = sc.tipHash
	}
	if e.PrevHash != want {
		v.breaks = append(v.breaks, Break{
			SenderID:    e.SenderID,
			EventID:     e.ID,
			TimestampMS: e.TimestampMS,
			WantPrev:    want,
			GotPrev:     e.PrevHash,
		})
		sc.broken = true
		sc.hasTip = true
		sc.tipHash = hash
		sc.tipTS = e.TimestampMS
		return StatusChainBroken
	}

	sc.hasTip = true
	sc.tipHash = hash
	sc.tipTS = e.TimestampMS
	return StatusVerified
}

// Tip returns the sender's current verified chain tip, if any.
func (v *Validator) Tip(senderID string) (hash string, timestampMS int64, ok bool) {
	sc := v.senders[senderID]
	if sc == nil || !sc.hasTip {
		return "", 0, false
	}
	return sc.tipHash, sc.tipTS, true
}

// Broken reports whether the sender's chain has broken at some point.
func (v *Validator) Broken(senderID string) bool {
	sc := v.senders[senderID]
	return sc != nil && sc.broken
}

// Breaks returns all chain breaks observed so far, in observation order.
func (v *Validator) Breaks() []Break {
	return v.breaks
}
