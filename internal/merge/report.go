package merge

import "github.com/driftlog/driftlog/internal/chain"

// SkippedFragment records a fragment excluded from a merge, with the
// storage name and a human-readable reason.
type SkippedFragment struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DroppedEvent records a single event excluded from the timeline. EventID
// is empty when the line never parsed far enough to yield one.
type DroppedEvent struct {
	Fragment string `json:"fragment"`
	EventID  string `json:"event_id,omitempty"`
	Reason   string `json:"reason"`
}

// Report accounts for everything a merge saw and everything it excluded.
// Exclusions here are per-item: the surrounding merge still completes.
type Report struct {
	// Listed counts fragment names returned by storage, before the
	// watermark filter.
	Listed int `json:"listed"`

	// Fetched counts fragments downloaded and parsed.
	Fetched int `json:"fetched"`

	// Deduplicated counts event occurrences discarded because the same
	// event ID already appeared in an earlier-named fragment.
	Deduplicated int `json:"deduplicated"`

	Skipped []SkippedFragment `json:"skipped,omitempty"`
	Dropped []DroppedEvent    `json:"dropped,omitempty"`

	// BadSignatures lists event IDs whose signatures failed verification.
	// Those events remain in the timeline, annotated.
	BadSignatures []string `json:"bad_signatures,omitempty"`

	// ChainBreaks lists the first hash-chain discontinuity seen per sender.
	ChainBreaks []chain.Break `json:"chain_breaks,omitempty"`
}

// Clean reports whether the merge saw no exclusions or verification
// failures of any kind.
func (r Report) Clean() bool {
	return len(r.Skipped) == 0 && len(r.Dropped) == 0 &&
		len(r.BadSignatures) == 0 && len(r.ChainBreaks) == 0
}

func (r *Report) skipFragment(name, reason string) {
	r.Skipped = append(r.Skipped, SkippedFragment{Name: name, Reason: reason})
}

func (r *Report) dropEvent(frag, id, reason string) {
	r.Dropped = append(r.Dropped, DroppedEvent{Fragment: frag, EventID: id, Reason: reason})
}
