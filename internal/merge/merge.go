// Package merge turns the fragments currently visible in storage into one
// globally ordered, deduplicated, verification-annotated timeline.
//
// The merge is deterministic: for the same fragment set it produces
// byte-identical output regardless of fetch order or concurrency. Fragments
// fetch in parallel; the reduction over the results is single-threaded and
// processed in ascending fragment-name order, so "first occurrence" during
// dedupe never depends on scheduling.
package merge

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlog/driftlog/internal/blob"
	"github.com/driftlog/driftlog/internal/chain"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/fragment"
	"github.com/driftlog/driftlog/internal/identity"
)

// DefaultConcurrency bounds parallel fragment fetches.
const DefaultConcurrency = 4

// Entry is one timeline position: an event plus its verification status.
type Entry struct {
	Event  *event.Event `json:"event"`
	Status chain.Status `json:"status"`
}

// Timeline is the ordered, deduplicated event sequence. Order is
// (timestamp_ms, event_id) ascending; the event ID tie-break makes the
// order total even for equal timestamps.
type Timeline []Entry

// Options tunes one merge invocation.
type Options struct {
	// Watermark skips fragments whose end timestamp is strictly before it.
	// Zero means merge everything. Thread the returned watermark into the
	// next call for incremental fetches.
	Watermark int64

	// Concurrency bounds parallel fetches. Defaults to DefaultConcurrency.
	Concurrency int

	Logger zerolog.Logger

	// Now anchors timestamp sanity checks. Defaults to time.Now.
	Now func() time.Time
}

// Result is a complete merge outcome. No partial timeline is ever
// published: a cancelled merge returns an error instead.
type Result struct {
	Timeline Timeline

	// Watermark is the value to pass to the next merge. It only advances
	// when every candidate fragment fetched and parsed cleanly; a failed
	// fragment holds it back so the next invocation retries.
	Watermark int64

	Report Report
}

type candidate struct {
	path string
	name fragment.Name
}

type fetchResult struct {
	events   []*event.Event
	lineErrs []fragment.LineError
	err      error
}

// Merge lists, fetches, verifies and orders a room's fragments.
//
// Per-item failures (one corrupt fragment, one bad line, one forged event)
// go into the report and never abort the rest; only listing failures and
// cancellation return an error.
func Merge(ctx context.Context, store blob.Store, roomID string, ring identity.KeyRing, opts Options) (*Result, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	names, err := store.List(ctx, fragment.LogPrefix(roomID))
	if err != nil {
		return nil, fmt.Errorf("merge %s: list fragments: %w", roomID, err)
	}

	report := Report{Listed: len(names)}
	maxEnd := opts.Watermark

	// Coarse pre-sort and incremental filter from names alone, before any
	// fetch. List returns sorted names; keep that order for dedupe.
	var candidates []candidate
	for _, path := range names {
		n, err := fragment.ParseFilename(path)
		if err != nil {
			report.skipFragment(path, err.Error())
			continue
		}
		if n.EndTS > maxEnd {
			maxEnd = n.EndTS
		}
		if n.EndTS < opts.Watermark {
			continue
		}
		candidates = append(candidates, candidate{path: path, name: n})
	}

	results := fetchAll(ctx, store, candidates, opts.Concurrency)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("merge %s: %w", roomID, err)
	}

	now := opts.Now()
	seen := make(map[string]bool)
	var merged []*event.Event
	fetchFailed := false

	for i, c := range candidates {
		res := results[i]
		if res.err != nil {
			// Treated like a parse failure: skip this fragment only, retry
			// on the next invocation.
			fetchFailed = true
			report.skipFragment(c.path, res.err.Error())
			opts.Logger.Warn().Str("fragment", c.path).Err(res.err).Msg("fragment skipped")
			continue
		}
		report.Fetched++
		for _, le := range res.lineErrs {
			fetchFailed = true
			report.dropEvent(c.path, "", le.Error())
		}
		for _, e := range res.events {
			if e.RoomID != roomID {
				report.dropEvent(c.path, e.ID, fmt.Sprintf("event belongs to room %s", e.RoomID))
				continue
			}
			if e.Type.Ephemeral() {
				report.dropEvent(c.path, e.ID, "ephemeral event persisted by a misbehaving writer")
				continue
			}
			if err := event.Validate(e, now); err != nil {
				report.dropEvent(c.path, e.ID, err.Error())
				continue
			}
			if seen[e.ID] {
				report.Deduplicated++
				continue
			}
			seen[e.ID] = true
			merged = append(merged, e)
		}
	}

	slices.SortFunc(merged, compareEvents)

	// Feeding the globally sorted stream gives each sender's partition in
	// ascending (timestamp_ms, event_id) order, which is exactly what the
	// chain validator requires; annotations land back in global order.
	validator := chain.NewValidator(ring)
	timeline := make(Timeline, 0, len(merged))
	for _, e := range merged {
		status := validator.Observe(e)
		if status == chain.StatusBadSignature {
			report.BadSignatures = append(report.BadSignatures, e.ID)
		}
		timeline = append(timeline, Entry{Event: e, Status: status})
	}
	report.ChainBreaks = validator.Breaks()

	watermark := opts.Watermark
	if !fetchFailed {
		watermark = maxEnd
	}

	return &Result{Timeline: timeline, Watermark: watermark, Report: report}, nil
}

// fetchAll downloads and parses candidates with bounded parallelism. The
// result slice is positionally aligned with candidates, so downstream
// processing order is independent of completion order. Cancellation stops
// further fetches; in-flight ones finish and are discarded by the caller.
func fetchAll(ctx context.Context, store blob.Store, candidates []candidate, concurrency int) []fetchResult {
	results := make([]fetchResult, len(candidates))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i] = fetchResult{err: err}
				return
			}
			data, err := store.Get(ctx, c.path)
			if err != nil {
				results[i] = fetchResult{err: err}
				return
			}
			events, lineErrs := fragment.ParseBody(data)
			results[i] = fetchResult{events: events, lineErrs: lineErrs}
		}(i, c)
	}
	wg.Wait()
	return results
}

func compareEvents(a, b *event.Event) int {
	if a.TimestampMS != b.TimestampMS {
		if a.TimestampMS < b.TimestampMS {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}
