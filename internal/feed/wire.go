package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tally/internal/core"
)

// wireRecord mirrors the document shape of the hosted store, where amount
// may arrive as a number, a numeric string, or garbage.
type wireRecord struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"userId"`
	Title     string          `json:"title"`
	Amount    json.RawMessage `json:"amount"`
	Kind      string          `json:"type"`
	Category  string          `json:"category"`
	Date      string          `json:"date"`
	Note      string          `json:"note"`
	CreatedAt json.RawMessage `json:"createdAt"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

// wireTimestamp is the object form of a server timestamp.
type wireTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// DecodeRecords parses a JSON array of record documents. Individual
// malformed values degrade instead of failing the whole batch: an
// unreadable amount becomes zero, an unreadable date is kept verbatim and
// an unreadable timestamp is left zero.
func DecodeRecords(data []byte) ([]core.Record, error) {
	var docs []wireRecord
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]core.Record, 0, len(docs))
	for _, d := range docs {
		r := core.Record{
			ID:        d.ID,
			OwnerID:   d.OwnerID,
			Title:     d.Title,
			Amount:    core.LenientAmount(rawAmount(d.Amount)),
			Kind:      core.Kind(strings.ToLower(d.Kind)),
			Category:  d.Category,
			Date:      core.Date(d.Date),
			Note:      d.Note,
			CreatedAt: rawTime(d.CreatedAt),
			UpdatedAt: rawTime(d.UpdatedAt),
		}
		out = append(out, r)
	}
	return out, nil
}

func rawAmount(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// rawTime reads an RFC 3339 string or a {seconds, nanoseconds} object.
// Anything else yields the zero time.
func rawTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var ts wireTimestamp
	if err := json.Unmarshal(raw, &ts); err != nil {
		return time.Time{}
	}
	switch {
	case ts.Seconds != nil:
		return time.Unix(*ts.Seconds, ts.Nanoseconds).UTC()
	case ts.USeconds != nil:
		return time.Unix(*ts.USeconds, ts.UNanoseconds).UTC()
	}
	return time.Time{}
}
