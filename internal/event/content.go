package event

import (
	"encoding/json"
	"fmt"
)

// Content is the sealed variant payload of an event. Exactly one concrete
// type exists per event type; the state resolver matches the set
// exhaustively, so adding a type is a compile-time-visible change.
type Content interface {
	// EventType reports the event type this content belongs to.
	EventType() Type

	// canonical returns the content as a canonical object with absent
	// optional fields encoded as explicit null.
	canonical() Object
}

// MsgTypeText is the default msgtype for plain-text messages.
const MsgTypeText = "m.text"

// MessageContent is the payload of an m.room.message event.
type MessageContent struct {
	Body          string `json:"body"`
	MsgType       string `json:"msgtype"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func (MessageContent) EventType() Type { return TypeMessage }

func (c MessageContent) canonical() Object {
	return Object{
		"body":           String(c.Body),
		"msgtype":        String(c.MsgType),
		"format":         optString(c.Format),
		"formatted_body": optString(c.FormattedBody),
	}
}

// Membership values for MemberContent.
const (
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipInvite = "invite"
	MembershipBan    = "ban"
	MembershipKick   = "kick"
)

var validMemberships = map[string]bool{
	MembershipJoin:   true,
	MembershipLeave:  true,
	MembershipInvite: true,
	MembershipBan:    true,
	MembershipKick:   true,
}

// MemberContent is the payload of an m.room.member event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (MemberContent) EventType() Type { return TypeMember }

func (c MemberContent) canonical() Object {
	return Object{
		"membership":  String(c.Membership),
		"displayname": optString(c.DisplayName),
		"avatar_url":  optString(c.AvatarURL),
		"reason":      optString(c.Reason),
	}
}

// RedactionContent is the payload of an m.room.redaction event.
type RedactionContent struct {
	Redacts string `json:"redacts"`
	Reason  string `json:"reason,omitempty"`
}

func (RedactionContent) EventType() Type { return TypeRedaction }

func (c RedactionContent) canonical() Object {
	return Object{
		"redacts": String(c.Redacts),
		"reason":  optString(c.Reason),
	}
}

// EditContent is the payload of an m.room.edit event. Replaces names the
// original message event; NewContent carries the replacement body.
type EditContent struct {
	Replaces   string         `json:"replaces"`
	NewContent MessageContent `json:"new_content"`
}

func (EditContent) EventType() Type { return TypeEdit }

func (c EditContent) canonical() Object {
	return Object{
		"replaces":    String(c.Replaces),
		"new_content": c.NewContent.canonical(),
	}
}

// ReactionContent is the payload of an m.room.reaction event.
type ReactionContent struct {
	RelatesTo string `json:"relates_to"`
	Reaction  string `json:"reaction"`
}

func (ReactionContent) EventType() Type { return TypeReaction }

func (c ReactionContent) canonical() Object {
	return Object{
		"relates_to": String(c.RelatesTo),
		"reaction":   String(c.Reaction),
	}
}

// TypingContent is the payload of an m.room.typing event. Typing events are
// ephemeral: they travel only over the notification channel and are never
// written to a fragment or fed to state resolution.
type TypingContent struct {
	Active bool `json:"typing"`
}

func (TypingContent) EventType() Type { return TypeTyping }

func (c TypingContent) canonical() Object {
	return Object{
		"typing": Bool(c.Active),
	}
}

// DecodeContent parses a raw content payload according to the event type.
func DecodeContent(t Type, raw json.RawMessage) (Content, error) {
	switch t {
	case TypeMessage:
		var c MessageContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("message content: %w", err)
		}
		if c.MsgType == "" {
			c.MsgType = MsgTypeText
		}
		return c, nil
	case TypeMember:
		var c MemberContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("member content: %w", err)
		}
		return c, nil
	case TypeRedaction:
		var c RedactionContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("redaction content: %w", err)
		}
		return c, nil
	case TypeEdit:
		var c EditContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("edit content: %w", err)
		}
		if c.NewContent.MsgType == "" {
			c.NewContent.MsgType = MsgTypeText
		}
		return c, nil
	case TypeReaction:
		var c ReactionContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("reaction content: %w", err)
		}
		return c, nil
	case TypeTyping:
		var c TypingContent
		if err := decodeStrict(raw, &c); err != nil {
			return nil, fmt.Errorf("typing content: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// decodeStrict unmarshals JSON while rejecting non-object payloads early.
// Unknown keys are tolerated on decode; re-encoding drops them, which makes
// the signature check fail closed for events signed over extra fields.
func decodeStrict(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty content")
	}
	return json.Unmarshal(raw, out)
}
