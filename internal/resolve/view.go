package resolve

import (
	"slices"

	"github.com/driftlog/driftlog/internal/chain"
)

// ReactionView is one symbol's aggregate on a message, senders sorted.
type ReactionView struct {
	Symbol  string   `json:"symbol"`
	Senders []string `json:"senders"`
}

// MessageView is the externally visible form of a resolved message.
type MessageView struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	TimestampMS int64        `json:"timestamp_ms"`
	ParentID    string       `json:"parent_id,omitempty"`
	Status      chain.Status `json:"status"`

	Body    string `json:"body"`
	MsgType string `json:"msgtype,omitempty"`
	Edited  bool   `json:"edited,omitempty"`
	Edits   []Edit `json:"edits,omitempty"`

	Redacted        bool   `json:"redacted,omitempty"`
	RedactedBy      string `json:"redacted_by,omitempty"`
	RedactionReason string `json:"redaction_reason,omitempty"`

	Reactions []ReactionView `json:"reactions,omitempty"`
}

// Snapshot is a deterministic, JSON-friendly rendering of the state.
// Map keys marshal sorted and every slice has a defined order, so equal
// states produce byte-identical encodings.
type Snapshot struct {
	RoomID  string            `json:"room_id"`
	Members map[string]Member `json:"members"`

	// Messages in timeline order.
	Messages []MessageView `json:"messages"`

	// Threads maps a parent event ID to its replies, in timeline order.
	Threads map[string][]string `json:"threads,omitempty"`

	Anomalies []Anomaly `json:"anomalies,omitempty"`

	// ExcludedBadSignature counts events dropped from resolution because
	// their signatures failed verification.
	ExcludedBadSignature int `json:"excluded_bad_signature,omitempty"`
}

// Snapshot renders the current state. The receiver stays usable; the
// snapshot does not alias mutable internals.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		RoomID:               s.roomID,
		Members:              make(map[string]Member, len(s.members)),
		Messages:             make([]MessageView, 0, len(s.order)),
		Anomalies:            slices.Clone(s.anomalies),
		ExcludedBadSignature: s.excludedSig,
	}
	for id, m := range s.members {
		snap.Members[id] = *m
	}

	var threads map[string][]string
	for _, id := range s.order {
		m := s.messages[id]
		view := MessageView{
			ID:              m.ID,
			SenderID:        m.SenderID,
			TimestampMS:     m.TimestampMS,
			ParentID:        m.ParentID,
			Status:          m.Status,
			Body:            m.Body(),
			Edited:          len(m.Edits) > 0,
			Edits:           slices.Clone(m.Edits),
			Redacted:        m.Redacted,
			RedactedBy:      m.RedactedBy,
			RedactionReason: m.RedactionReason,
		}
		if !m.Redacted {
			view.MsgType = m.MsgType
			view.Reactions = s.reactionViews(id)
		}
		snap.Messages = append(snap.Messages, view)

		if m.ParentID != "" {
			if threads == nil {
				threads = make(map[string][]string)
			}
			threads[m.ParentID] = append(threads[m.ParentID], m.ID)
		}
	}
	snap.Threads = threads
	return snap
}

func (s *State) reactionViews(messageID string) []ReactionView {
	bySymbol := s.reactions[messageID]
	if len(bySymbol) == 0 {
		return nil
	}
	views := make([]ReactionView, 0, len(bySymbol))
	for symbol, bySender := range bySymbol {
		senders := make([]string, 0, len(bySender))
		for sender := range bySender {
			senders = append(senders, sender)
		}
		slices.Sort(senders)
		views = append(views, ReactionView{Symbol: symbol, Senders: senders})
	}
	slices.SortFunc(views, func(a, b ReactionView) int {
		switch {
		case a.Symbol < b.Symbol:
			return -1
		case a.Symbol > b.Symbol:
			return 1
		default:
			return 0
		}
	})
	return views
}
