package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/internal/event"
)

func TestNameRoundTrip(t *testing.T) {
	n := Name{StartTS: 1726315200000, EndTS: 1726315260000, WriterID: "alice-01J7QW4T"}

	filename := n.Filename()
	assert.Equal(t, "messages_1726315200000_1726315260000_alice-01J7QW4T.jsonl", filename)

	parsed, err := ParseFilename(filename)
	require.NoError(t, err)
	assert.Equal(t, n, parsed)
}

func TestNameWriterIDWithUnderscores(t *testing.T) {
	n := Name{StartTS: 1, EndTS: 2, WriterID: "writer_with_underscores"}

	parsed, err := ParseFilename(n.Filename())
	require.NoError(t, err)
	assert.Equal(t, n, parsed)
}

func TestNamePath(t *testing.T) {
	n := Name{StartTS: 1726315200000, EndTS: 1726315260000, WriterID: "alice-1"}

	// 1726315200000 ms = 2025-09-14 12:00:00 UTC.
	assert.Equal(t,
		"rooms/room1/logs/2025-09-14/messages_1726315200000_1726315260000_alice-1.jsonl",
		n.Path("room1"))
	assert.Equal(t, "rooms/room1/logs/", LogPrefix("room1"))
}

func TestParseFilenameFromFullPath(t *testing.T) {
	parsed, err := ParseFilename("rooms/room1/logs/2025-09-14/messages_10_20_w.jsonl")
	require.NoError(t, err)
	assert.Equal(t, Name{StartTS: 10, EndTS: 20, WriterID: "w"}, parsed)
}

func TestParseFilenameRejections(t *testing.T) {
	bad := []string{
		"notes.txt",
		"messages_abc_20_w.jsonl",
		"messages_10_xyz_w.jsonl",
		"messages_10_20.jsonl",
		"messages_10_20_.jsonl",
		"messages_20_10_w.jsonl", // end before start
	}
	for _, name := range bad {
		_, err := ParseFilename(name)
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func signedEvent(t *testing.T, id string, body string) *event.Event {
	t.Helper()
	return &event.Event{
		ID:          id,
		RoomID:      "room1",
		TimestampMS: 1726315200000,
		SenderID:    "alice@example.com",
		Type:        event.TypeMessage,
		Signature:   "c2ln",
		Content:     event.MessageContent{Body: body, MsgType: event.MsgTypeText},
	}
}

func TestBodyRoundTrip(t *testing.T) {
	events := []*event.Event{
		signedEvent(t, "room1::t::a", "first"),
		signedEvent(t, "room1::t::b", "second"),
	}

	body, err := EncodeBody(events)
	require.NoError(t, err)

	parsed, lineErrs := ParseBody(body)
	assert.Empty(t, lineErrs)
	require.Len(t, parsed, 2)
	assert.Equal(t, "room1::t::a", parsed[0].ID)
	assert.Equal(t, "room1::t::b", parsed[1].ID)
}

func TestEncodeBodyRefusesEphemeral(t *testing.T) {
	typing := &event.Event{
		ID:          "room1::t::typ",
		RoomID:      "room1",
		TimestampMS: 1726315200000,
		SenderID:    "alice@example.com",
		Type:        event.TypeTyping,
		Signature:   "c2ln",
		Content:     event.TypingContent{Active: true},
	}

	_, err := EncodeBody([]*event.Event{typing})
	assert.Error(t, err)
}

func TestParseBodySkipsBadLinesOnly(t *testing.T) {
	good, err := EncodeBody([]*event.Event{signedEvent(t, "room1::t::a", "ok")})
	require.NoError(t, err)

	body := append([]byte("{corrupt json\n"), good...)
	body = append(body, []byte("also not json\n")...)

	parsed, lineErrs := ParseBody(body)
	require.Len(t, parsed, 1)
	assert.Equal(t, "room1::t::a", parsed[0].ID)
	require.Len(t, lineErrs, 2)
	assert.Equal(t, 1, lineErrs[0].Line)
	assert.Equal(t, 3, lineErrs[1].Line)
}

func TestParseBodyToleratesBlankLines(t *testing.T) {
	body, err := EncodeBody([]*event.Event{signedEvent(t, "room1::t::a", "ok")})
	require.NoError(t, err)
	body = append(body, []byte("\n\n")...)

	parsed, lineErrs := ParseBody(body)
	assert.Empty(t, lineErrs)
	assert.Len(t, parsed, 1)
}
