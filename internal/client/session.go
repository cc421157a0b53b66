// Package client wires the full stack into a usable chat session: keys
// from the keystore, room metadata from the blob store, a write buffer for
// outgoing events and merge+resolve for reads.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlog/driftlog/internal/blob"
	"github.com/driftlog/driftlog/internal/config"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/identity"
	"github.com/driftlog/driftlog/internal/merge"
	"github.com/driftlog/driftlog/internal/notify"
	"github.com/driftlog/driftlog/internal/resolve"
	"github.com/driftlog/driftlog/internal/room"
	"github.com/driftlog/driftlog/internal/writer"
)

// DefaultPollInterval paces the fallback notifier when no pub/sub channel
// is configured.
const DefaultPollInterval = 3 * time.Second

type options struct {
	store    blob.Store
	notifier notify.Notifier
	now      func() time.Time
}

// Option adjusts session construction, mainly for tests and embedding.
type Option func(*options)

// WithStore uses an already-open blob store instead of dialing
// cfg.StorageURI. The caller keeps ownership; Close will not close it.
func WithStore(s blob.Store) Option { return func(o *options) { o.store = s } }

// WithNotifier overrides the notification channel.
func WithNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Session is one user's connection to one room. Safe for concurrent use.
type Session struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    blob.Store
	ownStore bool
	notifier notify.Notifier
	kp       *identity.KeyPair
	roomID   string
	buf      *writer.Buffer
	now      func() time.Time

	mu      sync.Mutex
	tipHash string
}

// InitRoom creates a room's metadata and registers the configured user as
// its first member. Fails if the room already exists.
func InitRoom(ctx context.Context, cfg *config.Config, roomID, name, description string, log zerolog.Logger, opts ...Option) error {
	o := buildOptions(opts)
	store, own, err := openStore(cfg, o)
	if err != nil {
		return err
	}
	if own {
		defer store.Close()
	}

	kp, err := loadKeyPair(cfg)
	if err != nil {
		return err
	}
	if _, err := room.Create(ctx, store, roomID, name, description); err != nil {
		return err
	}
	if err := room.AddMember(ctx, store, roomID, cfg.UserID, kp.PublicBase64()); err != nil {
		return err
	}
	log.Info().Str("room", roomID).Str("user", cfg.UserID).Msg("room created")
	return nil
}

// Open connects to an existing room. The user does not need to be a
// member yet; Join registers the key and announces membership.
func Open(ctx context.Context, cfg *config.Config, roomID string, log zerolog.Logger, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	store, own, err := openStore(cfg, o)
	if err != nil {
		return nil, err
	}
	closeOnErr := func() {
		if own {
			store.Close()
		}
	}

	if _, err := room.Load(ctx, store, roomID); err != nil {
		closeOnErr()
		return nil, err
	}
	kp, err := loadKeyPair(cfg)
	if err != nil {
		closeOnErr()
		return nil, err
	}

	notifier := o.notifier
	if notifier == nil {
		if cfg.NotifyURL != "" {
			notifier, err = notify.OpenRedis(cfg.NotifyURL)
			if err != nil {
				closeOnErr()
				return nil, err
			}
		} else {
			notifier = notify.NewPoller(DefaultPollInterval)
		}
	}

	s := &Session{
		cfg:      cfg,
		log:      log.With().Str("room", roomID).Str("user", cfg.UserID).Logger(),
		store:    store,
		ownStore: own,
		notifier: notifier,
		kp:       kp,
		roomID:   roomID,
		now:      o.now,
	}
	s.buf = writer.New(store, writer.Config{
		RoomID:        roomID,
		SenderID:      cfg.UserID,
		FlushInterval: cfg.FlushInterval(),
		MaxBuffered:   cfg.MaxBuffered,
	}, s.log).WithNotifier(notifier)

	if err := s.seedTip(ctx); err != nil {
		closeOnErr()
		return nil, err
	}
	return s, nil
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func openStore(cfg *config.Config, o options) (store blob.Store, owned bool, err error) {
	if o.store != nil {
		return o.store, false, nil
	}
	store, err = blob.OpenURI(cfg.StorageURI)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func loadKeyPair(cfg *config.Config) (*identity.KeyPair, error) {
	dir, err := cfg.Keystore()
	if err != nil {
		return nil, err
	}
	return identity.NewKeystore(dir).GetOrCreate(cfg.UserID)
}

// seedTip finds the hash of this user's latest event so new events extend
// the existing chain instead of forking it.
func (s *Session) seedTip(ctx context.Context) error {
	res, err := s.merge(ctx)
	if err != nil {
		return err
	}
	for i := len(res.Timeline) - 1; i >= 0; i-- {
		entry := res.Timeline[i]
		if entry.Event.SenderID != s.cfg.UserID {
			continue
		}
		hash, err := event.Hash(entry.Event)
		if err != nil {
			return fmt.Errorf("seed chain tip: %w", err)
		}
		s.mu.Lock()
		s.tipHash = hash
		s.mu.Unlock()
		return nil
	}
	return nil
}

func (s *Session) ring(ctx context.Context) (identity.StaticKeyRing, error) {
	meta, err := room.Load(ctx, s.store, s.roomID)
	if err != nil {
		return nil, err
	}
	ring, err := meta.KeyRing()
	if err != nil {
		return nil, err
	}
	// Our own key may not be registered yet; without it our unflushed
	// history would verify as forged.
	if _, ok := ring[s.cfg.UserID]; !ok {
		ring[s.cfg.UserID] = s.kp.Public()
	}
	return ring, nil
}

// emit signs and buffers one event, advancing the local chain tip.
func (s *Session) emit(ctx context.Context, c event.Content, parentID string) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	e := &event.Event{
		ID:          event.NewID(s.roomID, ts),
		RoomID:      s.roomID,
		TimestampMS: ts,
		SenderID:    s.cfg.UserID,
		Type:        c.EventType(),
		ParentID:    parentID,
		PrevHash:    s.tipHash,
		Content:     c,
	}
	if err := identity.SignEvent(e, s.kp); err != nil {
		return nil, err
	}
	if err := event.Validate(e, s.now()); err != nil {
		return nil, err
	}
	if err := s.buf.Append(ctx, e); err != nil {
		return nil, err
	}
	hash, err := event.Hash(e)
	if err != nil {
		return nil, err
	}
	s.tipHash = hash
	return e, nil
}

// Join registers this user's public key in the room metadata and
// announces membership on the timeline.
func (s *Session) Join(ctx context.Context, displayName string) (*event.Event, error) {
	meta, err := room.Load(ctx, s.store, s.roomID)
	if err != nil {
		return nil, err
	}
	if meta.Members[s.cfg.UserID] != s.kp.PublicBase64() {
		if err := room.AddMember(ctx, s.store, s.roomID, s.cfg.UserID, s.kp.PublicBase64()); err != nil {
			return nil, err
		}
	}
	return s.emit(ctx, event.MemberContent{Membership: "join", DisplayName: displayName}, "")
}

// Leave announces departure. The key stays in the metadata so history
// written while a member still verifies.
func (s *Session) Leave(ctx context.Context, reason string) (*event.Event, error) {
	return s.emit(ctx, event.MemberContent{Membership: "leave", Reason: reason}, "")
}

// Send posts a text message. parentID threads it under another event;
// empty means top level.
func (s *Session) Send(ctx context.Context, body, parentID string) (*event.Event, error) {
	return s.emit(ctx, event.MessageContent{Body: body, MsgType: "m.text"}, parentID)
}

// Edit replaces the body of one of this user's earlier messages.
func (s *Session) Edit(ctx context.Context, targetID, newBody string) (*event.Event, error) {
	return s.emit(ctx, event.EditContent{
		Replaces:   targetID,
		NewContent: event.MessageContent{Body: newBody, MsgType: "m.text"},
	}, "")
}

// Redact retracts one of this user's earlier events.
func (s *Session) Redact(ctx context.Context, targetID, reason string) (*event.Event, error) {
	return s.emit(ctx, event.RedactionContent{Redacts: targetID, Reason: reason}, "")
}

// React attaches a reaction symbol to a message.
func (s *Session) React(ctx context.Context, targetID, symbol string) (*event.Event, error) {
	return s.emit(ctx, event.ReactionContent{RelatesTo: targetID, Reaction: symbol}, "")
}

func (s *Session) merge(ctx context.Context) (*merge.Result, error) {
	ring, err := s.ring(ctx)
	if err != nil {
		return nil, err
	}
	return merge.Merge(ctx, s.store, s.roomID, ring, merge.Options{
		Concurrency: s.cfg.MergeConcurrency,
		Logger:      s.log,
		Now:         s.now,
	})
}

// Timeline merges every visible fragment into the ordered, annotated
// event sequence.
func (s *Session) Timeline(ctx context.Context) (*merge.Result, error) {
	return s.merge(ctx)
}

// State resolves the room's current state from the merged timeline.
func (s *Session) State(ctx context.Context) (resolve.Snapshot, *merge.Report, error) {
	res, err := s.merge(ctx)
	if err != nil {
		return resolve.Snapshot{}, nil, err
	}
	snap := resolve.Resolve(s.roomID, res.Timeline).Snapshot()
	return snap, &res.Report, nil
}

// Watch invokes fn with a fresh state snapshot whenever new fragments
// appear, until ctx is cancelled.
func (s *Session) Watch(ctx context.Context, fn func(resolve.Snapshot)) error {
	signals, err := s.notifier.Watch(ctx, s.roomID)
	if err != nil {
		return err
	}

	var last int64 = -1
	check := func() error {
		res, err := s.merge(ctx)
		if err != nil {
			return err
		}
		if res.Watermark == last {
			return nil
		}
		last = res.Watermark
		fn(resolve.Resolve(s.roomID, res.Timeline).Snapshot())
		return nil
	}

	if err := check(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			if err := check(); err != nil {
				s.log.Warn().Err(err).Msg("refresh failed")
			}
		}
	}
}

// Flush forces buffered events out to storage.
func (s *Session) Flush(ctx context.Context) error {
	return s.buf.Flush(ctx)
}

// Run drives the background flush loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	return s.buf.Run(ctx)
}

// Close flushes what it can and releases resources.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := s.buf.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.notifier.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
