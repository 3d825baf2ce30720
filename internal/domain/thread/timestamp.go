package thread

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type timestampKind uint8

const (
	tsAbsent timestampKind = iota
	tsTime
	tsISO
	tsEpoch
)

// Timestamp holds a creation time in whichever representation the source
// used. The zero value means "absent".
type Timestamp struct {
	kind  timestampKind
	time  time.Time
	iso   string
	epoch float64
}

func At(t time.Time) Timestamp { return Timestamp{kind: tsTime, time: t} }

func ISO(s string) Timestamp { return Timestamp{kind: tsISO, iso: s} }

// Epoch accepts either epoch seconds or epoch milliseconds; the unit is
// resolved by magnitude at normalization time.
func Epoch(n float64) Timestamp { return Timestamp{kind: tsEpoch, epoch: n} }

func (ts Timestamp) IsZero() bool { return ts.kind == tsAbsent }

// secondsThreshold separates epoch seconds from epoch milliseconds. 1e12 ms is
// September 2001; any smaller value is read as seconds.
const secondsThreshold = 1e12

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Millis normalizes the timestamp to epoch milliseconds, or 0 when it is
// absent or unparsable.
func (ts Timestamp) Millis() int64 {
	switch ts.kind {
	case tsTime:
		if ts.time.IsZero() {
			return 0
		}
		return ts.time.UnixMilli()
	case tsISO:
		if t, ok := parseISO(ts.iso); ok {
			return t.UnixMilli()
		}
	case tsEpoch:
		n := ts.epoch
		// Values outside int64 cannot be converted and count as unparsable.
		if math.IsNaN(n) || n >= 0x1p63 || n < -0x1p63 {
			return 0
		}
		if math.Abs(n) < secondsThreshold {
			return int64(math.Round(n * 1000))
		}
		return int64(n)
	}
	return 0
}

func parseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Time converts to a time.Time; the zero time when Millis would be 0.
func (ts Timestamp) Time() time.Time {
	if ts.kind == tsTime {
		return ts.time
	}
	ms := ts.Millis()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (ts Timestamp) String() string {
	switch ts.kind {
	case tsTime:
		return ts.time.Format(time.RFC3339Nano)
	case tsISO:
		return ts.iso
	case tsEpoch:
		return fmt.Sprintf("%g", ts.epoch)
	}
	return ""
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	switch ts.kind {
	case tsTime:
		return json.Marshal(ts.time)
	case tsISO:
		return json.Marshal(ts.iso)
	case tsEpoch:
		return json.Marshal(ts.epoch)
	}
	return []byte("null"), nil
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*ts = Timestamp{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding timestamp: %w", err)
		}
		*ts = ISO(s)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decoding timestamp: %w", err)
		}
		*ts = Epoch(n)
	}
	return nil
}

// Normalize returns the message's creation time in epoch milliseconds. It is
// only a sort key and is never written back.
func Normalize(m Message) int64 {
	return m.CreatedAt.Millis()
}
