// Package notify carries the "re-list this room's fragments" signal between
// writers and readers. The signal is opaque: it carries no event data, only
// the hint that a new fragment identifier may be visible. Readers that miss
// a signal lose nothing — the next merge lists storage either way.
package notify

import (
	"context"
	"time"
)

// Notifier announces and watches fragment-availability signals for rooms.
type Notifier interface {
	// Announce signals that the room may have new fragments.
	Announce(ctx context.Context, roomID string) error

	// Watch returns a channel that ticks whenever the room is announced.
	// The channel closes when ctx is cancelled.
	Watch(ctx context.Context, roomID string) (<-chan struct{}, error)

	// Close releases any backend resources.
	Close() error
}

// Poller is a Notifier with no transport: Watch ticks on a fixed interval
// and Announce is a no-op. It is the fallback when no pub/sub backend is
// configured.
type Poller struct {
	Interval time.Duration
}

// NewPoller returns a polling notifier with the given interval.
func NewPoller(interval time.Duration) *Poller {
	return &Poller{Interval: interval}
}

// Announce implements Notifier. Polling needs no announcement.
func (p *Poller) Announce(ctx context.Context, roomID string) error {
	return nil
}

// Watch implements Notifier.
func (p *Poller) Watch(ctx context.Context, roomID string) (<-chan struct{}, error) {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close implements Notifier.
func (p *Poller) Close() error { return nil }
