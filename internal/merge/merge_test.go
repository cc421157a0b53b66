package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/internal/blob"
	"github.com/driftlog/driftlog/internal/chain"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/fragment"
	"github.com/driftlog/driftlog/internal/identity"
)

const (
	testRoom = "general"
	baseTS   = int64(1726315200000) // 2024-09-14T12:00:00Z
)

type sender struct {
	id string
	kp *identity.KeyPair
}

func newSender(t *testing.T, id string) sender {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	return sender{id: id, kp: kp}
}

func ringOf(senders ...sender) identity.StaticKeyRing {
	ring := make(identity.StaticKeyRing, len(senders))
	for _, s := range senders {
		ring[s.id] = s.kp.Public()
	}
	return ring
}

// message builds one signed message event chained to prevHash and returns it
// alongside its own hash for the next link.
func message(t *testing.T, s sender, ts int64, prevHash, body string) (*event.Event, string) {
	t.Helper()
	e := &event.Event{
		ID:          event.NewID(testRoom, ts),
		RoomID:      testRoom,
		TimestampMS: ts,
		SenderID:    s.id,
		Type:        event.TypeMessage,
		PrevHash:    prevHash,
		Content:     event.MessageContent{Body: body, MsgType: "m.text"},
	}
	require.NoError(t, identity.SignEvent(e, s.kp))
	return e, event.MustHash(e)
}

// thread builds a signed chain of n messages for one sender, one second
// apart starting at startTS.
func thread(t *testing.T, s sender, startTS int64, n int) []*event.Event {
	t.Helper()
	events := make([]*event.Event, 0, n)
	prev := ""
	for i := range n {
		var e *event.Event
		e, prev = message(t, s, startTS+int64(i)*1000, prev, fmt.Sprintf("%s says %d", s.id, i))
		events = append(events, e)
	}
	return events
}

func putFragment(t *testing.T, store blob.Store, writerID string, events []*event.Event) fragment.Name {
	t.Helper()
	name := fragment.Name{
		StartTS:  events[0].TimestampMS,
		EndTS:    events[len(events)-1].TimestampMS,
		WriterID: writerID,
	}
	body, err := fragment.EncodeBody(events)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), name.Path(testRoom), body))
	return name
}

func ids(tl Timeline) []string {
	out := make([]string, len(tl))
	for i, entry := range tl {
		out[i] = entry.Event.ID
	}
	return out
}

func TestMergeOrdersAcrossFragments(t *testing.T) {
	alice := newSender(t, "alice")
	bob := newSender(t, "bob")
	store := blob.NewMemStore()

	// Interleaved in time, but each writer flushed its own fragment.
	a := thread(t, alice, baseTS, 3)
	b := thread(t, bob, baseTS+500, 3)
	putFragment(t, store, "alice-w1", a)
	putFragment(t, store, "bob-w1", b)

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice, bob), Options{})
	require.NoError(t, err)

	require.Len(t, res.Timeline, 6)
	want := []string{a[0].ID, b[0].ID, a[1].ID, b[1].ID, a[2].ID, b[2].ID}
	assert.Equal(t, want, ids(res.Timeline))
	for _, entry := range res.Timeline {
		assert.Equal(t, chain.StatusVerified, entry.Status, entry.Event.ID)
	}
	assert.True(t, res.Report.Clean())
	assert.Equal(t, baseTS+2500, res.Watermark)
}

func TestMergeTieBreaksOnEventID(t *testing.T) {
	alice := newSender(t, "alice")
	bob := newSender(t, "bob")
	store := blob.NewMemStore()

	ea, _ := message(t, alice, baseTS, "", "same instant")
	eb, _ := message(t, bob, baseTS, "", "same instant")
	ea.ID = testRoom + "::2024-09-14T12:00:00.000Z::aaaaaaaa"
	eb.ID = testRoom + "::2024-09-14T12:00:00.000Z::bbbbbbbb"
	require.NoError(t, identity.SignEvent(ea, alice.kp))
	require.NoError(t, identity.SignEvent(eb, bob.kp))

	// Written in the "wrong" order on purpose.
	putFragment(t, store, "bob-w1", []*event.Event{eb})
	putFragment(t, store, "alice-w1", []*event.Event{ea})

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice, bob), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{ea.ID, eb.ID}, ids(res.Timeline))
}

func TestMergeDeduplicatesByEventID(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()

	a := thread(t, alice, baseTS, 3)
	putFragment(t, store, "w1", a)
	// A retried flush wrote an overlapping fragment under a new name.
	overlap := fragment.Name{StartTS: a[1].TimestampMS, EndTS: a[2].TimestampMS, WriterID: "w2"}
	body, err := fragment.EncodeBody(a[1:])
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), overlap.Path(testRoom), body))

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	assert.Len(t, res.Timeline, 3)
	assert.Equal(t, 2, res.Report.Deduplicated)
	for _, entry := range res.Timeline {
		assert.Equal(t, chain.StatusVerified, entry.Status)
	}
}

func TestMergeDeterministicAcrossConcurrency(t *testing.T) {
	senders := []sender{newSender(t, "alice"), newSender(t, "bob"), newSender(t, "carol")}
	store := blob.NewMemStore()
	for i, s := range senders {
		all := thread(t, s, baseTS+int64(i)*137, 10)
		putFragment(t, store, s.id+"-w1", all[:5])
		putFragment(t, store, s.id+"-w2", all[5:])
	}
	ring := ringOf(senders...)

	first, err := Merge(context.Background(), store, testRoom, ring, Options{Concurrency: 1})
	require.NoError(t, err)
	for range 5 {
		again, err := Merge(context.Background(), store, testRoom, ring, Options{Concurrency: 8})
		require.NoError(t, err)
		assert.Equal(t, first.Timeline, again.Timeline)
		assert.Equal(t, first.Watermark, again.Watermark)
	}
}

func TestMergeWatermarkSkipsOldFragments(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()
	ring := ringOf(alice)

	a := thread(t, alice, baseTS, 4)
	putFragment(t, store, "w1", a[:2])

	res, err := Merge(context.Background(), store, testRoom, ring, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Timeline, 2)

	putFragment(t, store, "w1", a[2:])

	// The skip is strict: a fragment ending exactly at the watermark is
	// fetched again and deduplicated rather than risk being missed.
	res2, err := Merge(context.Background(), store, testRoom, ring, Options{Watermark: res.Watermark})
	require.NoError(t, err)
	assert.Len(t, res2.Timeline, 4)
	assert.Equal(t, 2, res2.Report.Fetched)
	assert.Equal(t, a[3].TimestampMS, res2.Watermark)

	res3, err := Merge(context.Background(), store, testRoom, ring, Options{Watermark: res2.Watermark})
	require.NoError(t, err)
	assert.Equal(t, []string{a[2].ID, a[3].ID}, ids(res3.Timeline))
	assert.Equal(t, 1, res3.Report.Fetched)

	// The surviving slice starts mid-chain, so its first event cannot link
	// to a tip this merge never saw.
	assert.Equal(t, chain.StatusChainBroken, res3.Timeline[0].Status)
}

func TestMergeAnnotatesBadSignature(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()

	a := thread(t, alice, baseTS, 3)
	a[1].Content = event.MessageContent{Body: "tampered after signing", MsgType: "m.text"}
	putFragment(t, store, "w1", a)

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	require.Len(t, res.Timeline, 3)
	assert.Equal(t, chain.StatusVerified, res.Timeline[0].Status)
	assert.Equal(t, chain.StatusBadSignature, res.Timeline[1].Status)
	// The forged event never advanced alice's chain, so the genuine
	// follow-up still links cleanly.
	assert.Equal(t, chain.StatusVerified, res.Timeline[2].Status)
	assert.Equal(t, []string{a[1].ID}, res.Report.BadSignatures)
}

func TestMergeRecordsChainBreak(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()

	a := thread(t, alice, baseTS, 4)
	// The fragment holding a[1] was lost; its successors reference a hash
	// the merger never sees.
	putFragment(t, store, "w1", []*event.Event{a[0], a[2], a[3]})

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	require.Len(t, res.Timeline, 3)
	assert.Equal(t, chain.StatusVerified, res.Timeline[0].Status)
	assert.Equal(t, chain.StatusChainBroken, res.Timeline[1].Status)
	assert.Equal(t, chain.StatusUnverifiedChain, res.Timeline[2].Status)
	require.Len(t, res.Report.ChainBreaks, 1)
	assert.Equal(t, a[2].ID, res.Report.ChainBreaks[0].EventID)
}

func TestMergeSkipsMalformedFragmentName(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()
	putFragment(t, store, "w1", thread(t, alice, baseTS, 2))
	require.NoError(t, store.Put(context.Background(),
		fragment.LogPrefix(testRoom)+"2024-09-14/notes.txt", []byte("not a fragment")))

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	assert.Len(t, res.Timeline, 2)
	require.Len(t, res.Report.Skipped, 1)
	assert.Contains(t, res.Report.Skipped[0].Name, "notes.txt")
	// A name that never parses is not retryable; it cannot hold the
	// watermark back.
	assert.Equal(t, baseTS+1000, res.Watermark)
}

func TestMergeIsolatesCorruptLines(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()

	a := thread(t, alice, baseTS, 2)
	body, err := fragment.EncodeBody(a)
	require.NoError(t, err)
	body = append(body, []byte("{\"garbage\": tru\n")...)
	name := fragment.Name{StartTS: a[0].TimestampMS, EndTS: a[1].TimestampMS, WriterID: "w1"}
	require.NoError(t, store.Put(context.Background(), name.Path(testRoom), body))

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	assert.Len(t, res.Timeline, 2)
	require.Len(t, res.Report.Dropped, 1)
	assert.Contains(t, res.Report.Dropped[0].Reason, "line 3")
	// Parse trouble holds the watermark at its previous position so the
	// fragment is looked at again next time.
	assert.Equal(t, int64(0), res.Watermark)
}

type failingStore struct {
	blob.Store
	failName string
}

func (s *failingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if name == s.failName {
		return nil, errors.New("connection reset")
	}
	return s.Store.Get(ctx, name)
}

func TestMergeSurvivesFetchFailure(t *testing.T) {
	alice := newSender(t, "alice")
	bob := newSender(t, "bob")
	mem := blob.NewMemStore()

	putFragment(t, mem, "alice-w1", thread(t, alice, baseTS, 2))
	lost := putFragment(t, mem, "bob-w1", thread(t, bob, baseTS+5000, 2))
	store := &failingStore{Store: mem, failName: lost.Path(testRoom)}

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice, bob), Options{})
	require.NoError(t, err)

	assert.Len(t, res.Timeline, 2)
	require.Len(t, res.Report.Skipped, 1)
	assert.Contains(t, res.Report.Skipped[0].Reason, "connection reset")
	assert.Equal(t, int64(0), res.Watermark)
}

func TestMergeIdempotent(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()
	putFragment(t, store, "w1", thread(t, alice, baseTS, 5))
	ring := ringOf(alice)

	first, err := Merge(context.Background(), store, testRoom, ring, Options{})
	require.NoError(t, err)
	second, err := Merge(context.Background(), store, testRoom, ring, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Timeline, second.Timeline)
	assert.Equal(t, first.Report, second.Report)
}

func TestMergeCancelled(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()
	putFragment(t, store, "w1", thread(t, alice, baseTS, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Merge(ctx, store, testRoom, ringOf(alice), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeEmptyRoom(t *testing.T) {
	store := blob.NewMemStore()
	res, err := Merge(context.Background(), store, testRoom, identity.StaticKeyRing{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Timeline)
	assert.Equal(t, int64(0), res.Watermark)
	assert.True(t, res.Report.Clean())
}

func TestMergeDropsForeignRoomEvents(t *testing.T) {
	alice := newSender(t, "alice")
	store := blob.NewMemStore()

	stray := &event.Event{
		ID:          event.NewID("other", baseTS),
		RoomID:      "other",
		TimestampMS: baseTS,
		SenderID:    alice.id,
		Type:        event.TypeMessage,
		Content:     event.MessageContent{Body: "wrong room", MsgType: "m.text"},
	}
	require.NoError(t, identity.SignEvent(stray, alice.kp))
	ours, _ := message(t, alice, baseTS+1000, "", "right room")
	putFragment(t, store, "w1", []*event.Event{stray, ours})

	res, err := Merge(context.Background(), store, testRoom, ringOf(alice), Options{})
	require.NoError(t, err)

	require.Len(t, res.Timeline, 1)
	assert.Equal(t, ours.ID, res.Timeline[0].Event.ID)
	require.Len(t, res.Report.Dropped, 1)
	assert.Equal(t, stray.ID, res.Report.Dropped[0].EventID)
}
