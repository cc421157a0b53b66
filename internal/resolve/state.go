// Package resolve folds a merged timeline into current room state:
// membership, messages with their edit and redaction history, reaction
// aggregates and a thread index.
//
// Resolution is a pure left fold. The same timeline always produces the
// same state, and applying a timeline incrementally entry by entry is
// identical to folding it in one pass.
package resolve

import (
	"github.com/driftlog/driftlog/internal/chain"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/merge"
)

// Anomaly kinds. Anomalous events never mutate state; they are recorded
// here and skipped.
const (
	AnomalyUnauthorizedEdit      = "unauthorized_edit"
	AnomalyUnauthorizedRedaction = "unauthorized_redaction"
	AnomalyDanglingReference     = "dangling_reference"
)

// Anomaly records an event that referenced something it was not allowed
// to, or something that does not exist in the resolved timeline.
type Anomaly struct {
	Kind     string `json:"kind"`
	EventID  string `json:"event_id"`
	SenderID string `json:"sender_id"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// Member is one sender's latest membership record.
type Member struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	UpdatedMS   int64  `json:"updated_ms"`
}

// Edit is one applied revision of a message.
type Edit struct {
	EventID     string `json:"event_id"`
	TimestampMS int64  `json:"timestamp_ms"`
	Body        string `json:"body"`
}

// Message is a resolved message with everything later events did to it.
type Message struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	TimestampMS int64        `json:"timestamp_ms"`
	ParentID    string       `json:"parent_id,omitempty"`
	Status      chain.Status `json:"status"`

	originalBody string
	MsgType      string `json:"msgtype"`

	// Edits holds applied revisions in timeline order. Redacting an edit
	// event removes its entry.
	Edits []Edit `json:"edits,omitempty"`

	Redacted        bool   `json:"redacted"`
	RedactedBy      string `json:"redacted_by,omitempty"`
	RedactionReason string `json:"redaction_reason,omitempty"`
}

// Body returns the message's current text: the latest surviving edit, the
// original body, or empty once redacted.
func (m *Message) Body() string {
	if m.Redacted {
		return ""
	}
	if n := len(m.Edits); n > 0 {
		return m.Edits[n-1].Body
	}
	return m.originalBody
}

type reactionRef struct {
	target string
	symbol string
	sender string
}

// State is the mutable fold accumulator. Zero value is not usable; call
// NewState.
type State struct {
	roomID  string
	members map[string]*Member

	order    []string
	messages map[string]*Message

	// reactions: target -> symbol -> sender -> reaction event ID. The
	// event ID is kept so redacting the reaction event can undo it.
	reactions      map[string]map[string]map[string]string
	reactionEvents map[string]reactionRef

	// editEvents: edit event ID -> edited message ID, for edit redaction.
	editEvents map[string]string

	anomalies   []Anomaly
	excludedSig int
}

func NewState(roomID string) *State {
	return &State{
		roomID:         roomID,
		members:        make(map[string]*Member),
		messages:       make(map[string]*Message),
		reactions:      make(map[string]map[string]map[string]string),
		reactionEvents: make(map[string]reactionRef),
		editEvents:     make(map[string]string),
	}
}

// Resolve folds a whole timeline into a fresh state.
func Resolve(roomID string, tl merge.Timeline) *State {
	s := NewState(roomID)
	for _, entry := range tl {
		s.Apply(entry)
	}
	return s
}

// Apply folds one timeline entry into the state. Entries must arrive in
// timeline order; events with forged signatures are excluded entirely,
// while chain-status annotations are carried through but never exclude.
func (s *State) Apply(entry merge.Entry) {
	e := entry.Event
	if entry.Status == chain.StatusBadSignature {
		s.excludedSig++
		return
	}
	if e.Type.Ephemeral() || e.RoomID != s.roomID {
		return
	}

	switch c := e.Content.(type) {
	case event.MessageContent:
		s.applyMessage(e, entry.Status, c)
	case event.MemberContent:
		s.applyMember(e, c)
	case event.EditContent:
		s.applyEdit(e, c)
	case event.RedactionContent:
		s.applyRedaction(e, c)
	case event.ReactionContent:
		s.applyReaction(e, c)
	}
}

func (s *State) applyMessage(e *event.Event, status chain.Status, c event.MessageContent) {
	if _, exists := s.messages[e.ID]; exists {
		return
	}
	s.messages[e.ID] = &Message{
		ID:           e.ID,
		SenderID:     e.SenderID,
		TimestampMS:  e.TimestampMS,
		ParentID:     e.ParentID,
		Status:       status,
		originalBody: c.Body,
		MsgType:      c.MsgType,
	}
	s.order = append(s.order, e.ID)
}

func (s *State) applyMember(e *event.Event, c event.MemberContent) {
	// Timeline order is total, so plain overwrite is last-writer-wins.
	s.members[e.SenderID] = &Member{
		Membership:  c.Membership,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		UpdatedMS:   e.TimestampMS,
	}
}

func (s *State) applyEdit(e *event.Event, c event.EditContent) {
	target, ok := s.messages[c.Replaces]
	if !ok {
		s.anomaly(AnomalyDanglingReference, e, c.Replaces, "edit targets an unknown message")
		return
	}
	if target.SenderID != e.SenderID {
		s.anomaly(AnomalyUnauthorizedEdit, e, c.Replaces, "only the original sender may edit")
		return
	}
	if target.Redacted {
		return
	}
	target.Edits = append(target.Edits, Edit{
		EventID:     e.ID,
		TimestampMS: e.TimestampMS,
		Body:        c.NewContent.Body,
	})
	s.editEvents[e.ID] = target.ID
}

func (s *State) applyRedaction(e *event.Event, c event.RedactionContent) {
	if target, ok := s.messages[c.Redacts]; ok {
		if target.SenderID != e.SenderID {
			s.anomaly(AnomalyUnauthorizedRedaction, e, c.Redacts, "only the original sender may redact")
			return
		}
		target.Redacted = true
		target.RedactedBy = e.SenderID
		target.RedactionReason = c.Reason
		target.Edits = nil
		delete(s.reactions, target.ID)
		return
	}

	if ref, ok := s.reactionEvents[c.Redacts]; ok {
		if ref.sender != e.SenderID {
			s.anomaly(AnomalyUnauthorizedRedaction, e, c.Redacts, "only the original sender may redact")
			return
		}
		s.removeReaction(ref)
		delete(s.reactionEvents, c.Redacts)
		return
	}

	if msgID, ok := s.editEvents[c.Redacts]; ok {
		target := s.messages[msgID]
		if target.SenderID != e.SenderID {
			s.anomaly(AnomalyUnauthorizedRedaction, e, c.Redacts, "only the original sender may redact")
			return
		}
		for i, ed := range target.Edits {
			if ed.EventID == c.Redacts {
				target.Edits = append(target.Edits[:i], target.Edits[i+1:]...)
				break
			}
		}
		delete(s.editEvents, c.Redacts)
		return
	}

	s.anomaly(AnomalyDanglingReference, e, c.Redacts, "redaction targets an unknown event")
}

func (s *State) applyReaction(e *event.Event, c event.ReactionContent) {
	target, ok := s.messages[c.RelatesTo]
	if !ok {
		s.anomaly(AnomalyDanglingReference, e, c.RelatesTo, "reaction targets an unknown message")
		return
	}
	// Reacting to a redacted message is a silent no-op: the aggregate was
	// cleared and the thread is closed.
	if target.Redacted {
		return
	}

	bySymbol := s.reactions[c.RelatesTo]
	if bySymbol == nil {
		bySymbol = make(map[string]map[string]string)
		s.reactions[c.RelatesTo] = bySymbol
	}
	bySender := bySymbol[c.Reaction]
	if bySender == nil {
		bySender = make(map[string]string)
		bySymbol[c.Reaction] = bySender
	}
	// Second identical reaction from the same sender is idempotent; the
	// first reaction event stays the one a redaction must name.
	if _, dup := bySender[e.SenderID]; dup {
		return
	}
	bySender[e.SenderID] = e.ID
	s.reactionEvents[e.ID] = reactionRef{target: c.RelatesTo, symbol: c.Reaction, sender: e.SenderID}
}

func (s *State) removeReaction(ref reactionRef) {
	bySymbol := s.reactions[ref.target]
	if bySymbol == nil {
		return
	}
	bySender := bySymbol[ref.symbol]
	delete(bySender, ref.sender)
	if len(bySender) == 0 {
		delete(bySymbol, ref.symbol)
	}
	if len(bySymbol) == 0 {
		delete(s.reactions, ref.target)
	}
}

func (s *State) anomaly(kind string, e *event.Event, target, reason string) {
	s.anomalies = append(s.anomalies, Anomaly{
		Kind:     kind,
		EventID:  e.ID,
		SenderID: e.SenderID,
		TargetID: target,
		Reason:   reason,
	})
}

// Anomalies returns the anomalies recorded so far, in timeline order.
func (s *State) Anomalies() []Anomaly { return s.anomalies }

// Member returns a sender's current membership record.
func (s *State) Member(senderID string) (Member, bool) {
	m, ok := s.members[senderID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Message returns a resolved message by event ID.
func (s *State) Message(id string) (*Message, bool) {
	m, ok := s.messages[id]
	return m, ok
}
