package kalshi

import (
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp is a wire timestamp that arrives either as epoch
// milliseconds or as an RFC3339 string, normalized to milliseconds on
// decode. A missing or unparseable value decodes as invalid rather than
// failing the record; period filters exclude invalid timestamps.
type Timestamp struct {
	ms    int64
	valid bool
}

// TimestampMS builds a valid Timestamp from epoch milliseconds.
func TimestampMS(ms int64) Timestamp {
	return Timestamp{ms: ms, valid: true}
}

func (t Timestamp) Valid() bool { return t.valid }

// Millis returns the normalized millisecond value, 0 if invalid.
func (t Timestamp) Millis() int64 { return t.ms }

func (t Timestamp) Time() time.Time { return time.UnixMilli(t.ms).UTC() }

// Day returns the UTC calendar day key ("2006-01-02").
func (t Timestamp) Day() string { return t.Time().Format("2006-01-02") }

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil || s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil
		}
		*t = Timestamp{ms: parsed.UnixMilli(), valid: true}
		return nil
	}

	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return nil
	}
	*t = Timestamp{ms: ms, valid: true}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time().Format(time.RFC3339))
}
