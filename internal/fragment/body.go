package fragment

import (
	"bytes"
	"fmt"

	"github.com/driftlog/driftlog/internal/event"
)

// LineError reports one unparseable line inside a fragment body. A bad line
// never poisons the remaining lines.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

/// EncodeBody renders signed events as a JSONL fragment body: one canonical
// JSON event per line, newline-terminated. Ephemeral event types are
// refused — they must never reach storage.
func EncodeBody(events []*event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		if e.Type.Ephemeral() {
			return nil, fmt.Errorf("encode fragment: %s event %s is ephemeral and cannot be persisted", e.Type, e.ID)
		}
		line, err := e.MarshalLine()
		if err != nil {
			return nil, fmt.Errorf("encode fragment: %w", err)
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// ParseBody decodes a fragment body line by line. Malformed lines are
// collected as LineErrors while parsing continues; the caller decides
// whether any successfully parsed events are still usable.
func ParseBody(data []byte) ([]*event.Event, []LineError) {
	var (
		events  []*event.Event
		lineErr []LineError
	)
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		e, err := event.ParseLine(line)
		if err != nil {
			lineErr = append(lineErr, LineError{Line: i + 1, Err: err})
			continue
		}
		events = append(events, e)
	}
	return events, lineErr
}
