// Package writer accumulates one session's signed events and flushes them
// into immutable fragments. The buffer is the durability boundary: an event
// stays buffered until some upload of it succeeds, so a failed flush loses
// nothing and a retried flush may duplicate — downstream dedupe by event ID
// handles that.
package writer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/driftlog/driftlog/internal/blob"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/fragment"
	"github.com/driftlog/driftlog/internal/identity"
	"github.com/driftlog/driftlog/internal/notify"
)

const (
	// DefaultFlushInterval is the elapsed-time flush trigger.
	DefaultFlushInterval = 5 * time.Second

	// DefaultMaxBuffered is the event-count flush trigger.
	DefaultMaxBuffered = 64
)

// ErrNameCollision wraps blob.ErrExists for a flush: a collision means a
// naming or clock bug, not a legitimate retry, and is fatal to that flush
// attempt. The partition's events return to the buffer.
var ErrNameCollision = errors.New("fragment name collision")

// Config tunes one writer session.
type Config struct {
	RoomID        string
	SenderID      string
	FlushInterval time.Duration
	MaxBuffered   int
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = DefaultMaxBuffered
	}
	return c
}

// Buffer is one writer session. It exclusively owns its unflushed events
// until an upload succeeds. Safe for concurrent use.
type Buffer struct {
	store    blob.Store
	notifier notify.Notifier // optional
	log      zerolog.Logger
	cfg      Config
	writerID string

	// now is injectable for tests.
	now func() time.Time

	mu      sync.Mutex
	pending []*event.Event
}

// New creates a writer session. The writer ID is unique to this session:
// the sanitized sender plus a fresh ULID, so concurrent sessions of the
// same sender never collide on fragment names.
func New(store blob.Store, cfg Config, log zerolog.Logger) *Buffer {
	cfg = cfg.withDefaults()
	return &Buffer{
		store:    store,
		log:      log,
		cfg:      cfg,
		writerID: identity.SanitizeID(cfg.SenderID) + "-" + ulid.Make().String(),
		now:      time.Now,
	}
}

// WithNotifier attaches a notifier announced after each successful flush.
func (b *Buffer) WithNotifier(n notify.Notifier) *Buffer {
	b.notifier = n
	return b
}

// WriterID returns this session's fragment-name identifier.
func (b *Buffer) WriterID() string {
	return b.writerID
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Append buffers a signed event. When the buffer reaches its count cap the
// call flushes synchronously before returning.
func (b *Buffer) Append(ctx context.Context, e *event.Event) error {
	if e.Type.Ephemeral() {
		return fmt.Errorf("append: %s events are ephemeral and never buffered", e.Type)
	}
	if e.Signature == "" {
		return fmt.Errorf("append: event %s is unsigned", e.ID)
	}
	if e.RoomID != b.cfg.RoomID {
		return fmt.Errorf("append: event %s belongs to room %s, session writes %s", e.ID, e.RoomID, b.cfg.RoomID)
	}

	b.mu.Lock()
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.cfg.MaxBuffered
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush partitions buffered events by UTC calendar date and uploads one
// fragment per partition. Events of a failed partition return to the
// buffer; successful partitions are gone for good. Returns the combined
// error of all failed partitions, nil if everything uploaded.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	byDate := make(map[string][]*event.Event)
	for _, e := range batch {
		d := fragment.DateDir(e.TimestampMS)
		byDate[d] = append(byDate[d], e)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var errs []error
	announced := false
	for _, d := range dates {
		events := byDate[d]
		if err := b.flushPartition(ctx, events); err != nil {
			b.requeue(events)
			errs = append(errs, err)
			continue
		}
		announced = true
	}

	if announced && b.notifier != nil {
		if err := b.notifier.Announce(ctx, b.cfg.RoomID); err != nil {
			// Best effort: readers poll storage regardless.
			b.log.Warn().Err(err).Str("room", b.cfg.RoomID).Msg("notify failed after flush")
		}
	}
	return errors.Join(errs...)
}

func (b *Buffer) flushPartition(ctx context.Context, events []*event.Event) error {
	slices.SortFunc(events, func(a, c *event.Event) int {
		if a.TimestampMS != c.TimestampMS {
			if a.TimestampMS < c.TimestampMS {
				return -1
			}
			return 1
		}
		if a.ID < c.ID {
			return -1
		}
		if a.ID > c.ID {
			return 1
		}
		return 0
	})

	name := fragment.Name{
		StartTS:  events[0].TimestampMS,
		EndTS:    events[len(events)-1].TimestampMS,
		WriterID: b.writerID,
	}

	body, err := fragment.EncodeBody(events)
	if err != nil {
		return fmt.Errorf("flush %s: %w", name.Filename(), err)
	}

	path := name.Path(b.cfg.RoomID)
	if err := b.store.Put(ctx, path, body); err != nil {
		if errors.Is(err, blob.ErrExists) {
			b.log.Error().Str("fragment", path).Msg("fragment name collision on flush")
			return fmt.Errorf("flush %s: %w: %w", path, ErrNameCollision, err)
		}
		return fmt.Errorf("flush %s: %w", path, err)
	}

	b.log.Debug().
		Str("fragment", path).
		Int("events", len(events)).
		Msg("fragment flushed")
	return nil
}

func (b *Buffer) requeue(events []*event.Event) {
	b.mu.Lock()
	b.pending = append(events, b.pending...)
	b.mu.Unlock()
}

// Run flushes on the configured interval until ctx is cancelled, then makes
// one final flush so shutdown never strands buffered events. Upload errors
// are logged and retried on the next tick; only the final flush error is
// returned.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.log.Warn().Err(err).Msg("flush failed, events retained")
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := b.Flush(flushCtx); err != nil {
				return fmt.Errorf("final flush: %w", err)
			}
			return nil
		}
	}
}
