package event

import (
	"fmt"
	"strings"
	"time"
)

// maxClockSkew bounds how far in the future a sender-assigned timestamp may
// sit before the event is rejected as malformed.
const maxClockSkew = time.Hour

// Validate checks the structural invariants of an event against the given
// reference time. It does not verify the signature or the hash chain; those
// belong to the identity and chain layers.
func Validate(e *Event, now time.Time) error {
	if !e.Type.Valid() {
		return fmt.Errorf("event %s: unknown type %q", e.ID, e.Type)
	}
	if e.RoomID == "" {
		return fmt.Errorf("event %s: empty room_id", e.ID)
	}
	if e.SenderID == "" {
		return fmt.Errorf("event %s: empty sender_id", e.ID)
	}
	if err := validateID(e.ID, e.RoomID); err != nil {
		return err
	}
	if e.TimestampMS <= 0 {
		return fmt.Errorf("event %s: timestamp must be positive", e.ID)
	}
	if e.TimestampMS > now.Add(maxClockSkew).UnixMilli() {
		return fmt.Errorf("event %s: timestamp more than %s in the future", e.ID, maxClockSkew)
	}
	if e.Content == nil {
		return fmt.Errorf("event %s: missing content", e.ID)
	}
	if e.Content.EventType() != e.Type {
		return fmt.Errorf("event %s: content shape %s does not match type %s",
			e.ID, e.Content.EventType(), e.Type)
	}
	return validateContent(e)
}

func validateID(id, roomID string) error {
	parts := strings.Split(id, "::")
	if len(parts) != 3 {
		return fmt.Errorf("event id %q: want 3 '::'-separated parts, got %d", id, len(parts))
	}
	if parts[0] != roomID {
		return fmt.Errorf("event id %q: room prefix %q does not match room_id %q", id, parts[0], roomID)
	}
	if parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("event id %q: empty segment", id)
	}
	return nil
}

func validateContent(e *Event) error {
	switch c := e.Content.(type) {
	case MessageContent:
		if strings.TrimSpace(c.Body) == "" {
			return fmt.Errorf("event %s: message body is empty", e.ID)
		}
	case MemberContent:
		if !validMemberships[c.Membership] {
			return fmt.Errorf("event %s: invalid membership %q", e.ID, c.Membership)
		}
	case RedactionContent:
		if c.Redacts == "" {
			return fmt.Errorf("event %s: redaction names no target", e.ID)
		}
	case EditContent:
		if c.Replaces == "" {
			return fmt.Errorf("event %s: edit names no target", e.ID)
		}
		if strings.TrimSpace(c.NewContent.Body) == "" {
			return fmt.Errorf("event %s: edit body is empty", e.ID)
		}
	case ReactionContent:
		if c.RelatesTo == "" {
			return fmt.Errorf("event %s: reaction names no target", e.ID)
		}
		if strings.TrimSpace(c.Reaction) == "" {
			return fmt.Errorf("event %s: reaction symbol is empty", e.ID)
		}
	case TypingContent:
		// No content constraints; typing never persists anyway.
	default:
		return fmt.Errorf("event %s: unhandled content type %T", e.ID, e.Content)
	}
	return nil
}
