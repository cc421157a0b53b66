// Package fragment defines the immutable blob format: the fragment naming
// scheme and the JSONL body holding one writer session's batch of signed
// events.
package fragment

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	filePrefix = "messages_"
	fileExt    = ".jsonl"
)

// Name identifies a fragment: the timestamp span of its events and the
// writer session that produced it. Names are collision-free by construction
// across writers because the writer ID is unique per session.
type Name struct {
	StartTS  int64
	EndTS    int64
	WriterID string
}

// Filename renders the protocol file name: messages_{start}_{end}_{writer}.jsonl.
func (n Name) Filename() string {
	return fmt.Sprintf("%s%d_%d_%s%s", filePrefix, n.StartTS, n.EndTS, n.WriterID, fileExt)
}

// Path renders the full blob name for a room:
// rooms/{room_id}/logs/{YYYY-MM-DD}/{filename}, where the date is the UTC
// calendar date of StartTS.
func (n Name) Path(roomID string) string {
	return path.Join(LogPrefix(roomID), DateDir(n.StartTS), n.Filename())
}

// LogPrefix returns the listing prefix covering all of a room's fragments.
func LogPrefix(roomID string) string {
	return path.Join("rooms", roomID, "logs") + "/"
}

// DateDir returns the UTC calendar date directory for a timestamp.
func DateDir(timestampMS int64) string {
	return time.UnixMilli(timestampMS).UTC().Format("2006-01-02")
}

// ParseFilename parses a fragment file name back into its Name. The writer
// ID may itself contain underscores; only the two leading timestamp fields
// are positional.
func ParseFilename(filename string) (Name, error) {
	base := path.Base(filename)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, fileExt) {
		return Name{}, fmt.Errorf("fragment name %q: want %s{start}_{end}_{writer}%s", base, filePrefix, fileExt)
	}
	core := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), fileExt)

	parts := strings.SplitN(core, "_", 3)
	if len(parts) != 3 || parts[2] == "" {
		return Name{}, fmt.Errorf("fragment name %q: missing fields", base)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Name{}, fmt.Errorf("fragment name %q: bad start timestamp: %w", base, err)
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Name{}, fmt.Errorf("fragment name %q: bad end timestamp: %w", base, err)
	}
	if end < start {
		return Name{}, fmt.Errorf("fragment name %q: end before start", base)
	}
	return Name{StartTS: start, EndTS: end, WriterID: parts[2]}, nil
}
