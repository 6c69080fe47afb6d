// Package filter narrows a record set by search text, kind, category and
// an inclusive date range.
package filter

import (
	"net/url"
	"strings"

	"tally/internal/core"
)

// All is the pass-through value for the Kind and Category axes. The empty
// string is treated the same way.
const All = "all"

// Criteria selects records. Every active criterion must match.
type Criteria struct {
	Search   string    `json:"search"`
	Kind     core.Kind `json:"type"`
	Category string    `json:"category"`
	From     core.Date `json:"dateFrom"`
	To       core.Date `json:"dateTo"`
}

// Default matches every record.
func Default() Criteria {
	return Criteria{Kind: All, Category: All}
}

// IsActive reports whether any criterion narrows the set.
func (c Criteria) IsActive() bool {
	return c.Search != "" || c.kindActive() || c.categoryActive() || c.From != "" || c.To != ""
}

func (c Criteria) kindActive() bool {
	return c.Kind != "" && c.Kind != All
}

func (c Criteria) categoryActive() bool {
	return c.Category != "" && c.Category != All
}

// Match reports whether r passes every active criterion.
func (c Criteria) Match(r core.Record) bool {
	if c.Search != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(c.Search)) {
		return false
	}
	if c.kindActive() && r.Kind != c.Kind {
		return false
	}
	if c.categoryActive() && r.Category != c.Category {
		return false
	}
	// Zero-padded ISO dates compare correctly as strings.
	if c.From != "" && r.Date < c.From {
		return false
	}
	if c.To != "" && r.Date > c.To {
		return false
	}
	return true
}

// Apply returns the records matching c in their original order. The input
// slice is never modified.
func Apply(records []core.Record, c Criteria) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// ParseQuery reads criteria from search, type, category, from and to query
// parameters. Missing parameters fall back to Default.
func ParseQuery(q url.Values) Criteria {
	c := Default()
	c.Search = q.Get("search")
	if v := q.Get("type"); v != "" {
		c.Kind = core.Kind(strings.ToLower(v))
	}
	if v := q.Get("category"); v != "" {
		c.Category = v
	}
	c.From = core.Date(strings.TrimSpace(q.Get("from")))
	c.To = core.Date(strings.TrimSpace(q.Get("to")))
	return c
}

// Key is a stable textual form of c, used for caching derived views.
func (c Criteria) Key() string {
	return strings.Join([]string{c.Search, string(c.Kind), c.Category, string(c.From), string(c.To)}, "\x1f")
}
