package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	e := testMessage(t)
	now := time.UnixMilli(e.TimestampMS)

	require.NoError(t, Validate(e, now))
}

func TestValidateRejections(t *testing.T) {
	now := time.UnixMilli(1726315200000)

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"bad id shape", func(e *Event) { e.ID = "no-separators" }},
		{"id room mismatch", func(e *Event) { e.ID = "other::2025-09-14T12:00:00.000Z::tok" }},
		{"zero timestamp", func(e *Event) { e.TimestampMS = 0 }},
		{"far future timestamp", func(e *Event) { e.TimestampMS = now.Add(2 * time.Hour).UnixMilli() }},
		{"empty sender", func(e *Event) { e.SenderID = "" }},
		{"missing content", func(e *Event) { e.Content = nil }},
		{"content type mismatch", func(e *Event) { e.Content = ReactionContent{RelatesTo: "x", Reaction: "y"} }},
		{"blank message body", func(e *Event) { e.Content = MessageContent{Body: "   ", MsgType: MsgTypeText} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testMessage(t)
			tt.mutate(e)
			assert.Error(t, Validate(e, now))
		})
	}
}

func TestValidateContentRules(t *testing.T) {
	now := time.UnixMilli(1726315200000)

	member := testMessage(t)
	member.Type = TypeMember
	member.Content = MemberContent{Membership: "promote"}
	assert.Error(t, Validate(member, now), "unknown membership value")

	member.Content = MemberContent{Membership: MembershipBan, Reason: "spam"}
	assert.NoError(t, Validate(member, now))

	reaction := testMessage(t)
	reaction.Type = TypeReaction
	reaction.Content = ReactionContent{RelatesTo: "room1::t::a", Reaction: " "}
	assert.Error(t, Validate(reaction, now), "blank reaction symbol")

	edit := testMessage(t)
	edit.Type = TypeEdit
	edit.Content = EditContent{Replaces: "", NewContent: MessageContent{Body: "x", MsgType: MsgTypeText}}
	assert.Error(t, Validate(edit, now), "edit without target")
}
