// Package aggregate derives summary totals and chart buckets from a record
// set. Every function is a pure computation over its input; nothing is
// cached or updated incrementally.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const (
	// MaxBreakdown bounds the expense-by-category breakdown.
	MaxBreakdown = 8
	// MaxTrend bounds the monthly trend to the most recent months.
	MaxTrend = 6
)

type (
	// Summary is the income/expense/balance aggregate.
	Summary struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	// CategoryTotal is one slice of the expense breakdown.
	CategoryTotal struct {
		Category string          `json:"category"`
		Name     string          `json:"name"`
		Icon     string          `json:"icon"`
		Color    string          `json:"color"`
		Value    decimal.Decimal `json:"value"`
	}

	// MonthTotal is one bar of the monthly trend.
	MonthTotal struct {
		Month   core.Month      `json:"-"`
		Label   string          `json:"month"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}

	// Report bundles every derived view of one record set.
	Report struct {
		Summary   Summary         `json:"summary"`
		Breakdown []CategoryTotal `json:"breakdown"`
		Trend     []MonthTotal    `json:"trend"`
	}
)

// Aggregate computes the full report. An empty input yields zero sums and
// empty, non-nil breakdown and trend.
func Aggregate(records []core.Record) Report {
	return Report{
		Summary:   Summarize(records),
		Breakdown: Breakdown(records),
		Trend:     Trend(records),
	}
}

// Summarize sums income and expense; Balance is always Income - Expense.
func Summarize(records []core.Record) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, r := range records {
		switch r.Kind {
		case core.Income:
			s.Income = s.Income.Add(contribution(r))
		case core.Expense:
			s.Expense = s.Expense.Add(contribution(r))
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// Breakdown groups expenses by category, largest first, keeping at most
// MaxBreakdown groups. Equal sums keep the order in which their category
// first appears in records.
func Breakdown(records []core.Record) []CategoryTotal {
	index := make(map[string]int)
	out := make([]CategoryTotal, 0)
	for _, r := range records {
		if r.Kind != core.Expense {
			continue
		}
		i, ok := index[r.Category]
		if !ok {
			info := core.Lookup(r.Category)
			i = len(out)
			index[r.Category] = i
			out = append(out, CategoryTotal{
				Category: r.Category,
				Name:     info.Label,
				Icon:     info.Icon,
				Color:    info.Color,
				Value:    decimal.Zero,
			})
		}
		out[i].Value = out[i].Value.Add(contribution(r))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Value.GreaterThan(out[b].Value)
	})
	if len(out) > MaxBreakdown {
		out = out[:MaxBreakdown]
	}
	return out
}

// Trend groups all records by calendar month, oldest first, keeping the
// MaxTrend most recent months that have at least one record. Records
// whose date does not parse are left out.
func Trend(records []core.Record) []MonthTotal {
	index := make(map[core.Month]int)
	out := make([]MonthTotal, 0)
	for _, r := range records {
		if !r.Kind.Valid() {
			continue
		}
		m, ok := r.Date.Month()
		if !ok {
			continue
		}
		i, seen := index[m]
		if !seen {
			i = len(out)
			index[m] = i
			out = append(out, MonthTotal{
				Month:   m,
				Label:   m.Label(),
				Income:  decimal.Zero,
				Expense: decimal.Zero,
			})
		}
		if r.Kind == core.Income {
			out[i].Income = out[i].Income.Add(contribution(r))
		} else {
			out[i].Expense = out[i].Expense.Add(contribution(r))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Month.Before(out[b].Month)
	})
	if len(out) > MaxTrend {
		out = out[len(out)-MaxTrend:]
	}
	return out
}

// contribution is the amount a record adds to its bucket. Anything that
// is not a positive number adds nothing.
func contribution(r core.Record) decimal.Decimal {
	if !r.Amount.IsPositive() {
		return decimal.Zero
	}
	return r.Amount
}
