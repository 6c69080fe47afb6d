package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
)

func rec(kind core.Kind, amount int64, category string, date core.Date) core.Record {
	return core.Record{
		Title:    fmt.Sprintf("%s %d", kind, amount),
		Amount:   decimal.NewFromInt(amount),
		Kind:     kind,
		Category: category,
		Date:     date,
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAggregate_Scenario(t *testing.T) {
	records := []core.Record{
		rec(core.Income, 1000, "salary", "2024-01-10"),
		rec(core.Expense, 300, "food", "2024-01-12"),
		rec(core.Expense, 200, "rent", "2024-02-01"),
	}

	got := Aggregate(records)

	assert.True(t, got.Summary.Income.Equal(dec(1000)))
	assert.True(t, got.Summary.Expense.Equal(dec(500)))
	assert.True(t, got.Summary.Balance.Equal(dec(500)))

	require.Len(t, got.Trend, 2)
	assert.Equal(t, "Jan 2024", got.Trend[0].Label)
	assert.True(t, got.Trend[0].Income.Equal(dec(1000)))
	assert.True(t, got.Trend[0].Expense.Equal(dec(300)))
	assert.Equal(t, "Feb 2024", got.Trend[1].Label)
	assert.True(t, got.Trend[1].Income.IsZero())
	assert.True(t, got.Trend[1].Expense.Equal(dec(200)))
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil)

	assert.True(t, got.Summary.Income.IsZero())
	assert.True(t, got.Summary.Expense.IsZero())
	assert.True(t, got.Summary.Balance.IsZero())
	assert.NotNil(t, got.Breakdown)
	assert.Empty(t, got.Breakdown)
	assert.NotNil(t, got.Trend)
	assert.Empty(t, got.Trend)
}

func TestSummarize_BalanceIsIncomeMinusExpense(t *testing.T) {
	sets := [][]core.Record{
		{rec(core.Income, 5, "salary", "2024-01-01")},
		{rec(core.Expense, 7, "food", "2024-01-01")},
		{
			rec(core.Income, 12, "gift", "2024-01-01"),
			rec(core.Expense, 40, "rent", "2024-01-02"),
			{Kind: core.Income, Amount: decimal.RequireFromString("0.1"), Date: "2024-01-03"},
			{Kind: core.Income, Amount: decimal.RequireFromString("0.2"), Date: "2024-01-03"},
		},
	}
	for i, records := range sets {
		s := Summarize(records)
		assert.Truef(t, s.Balance.Equal(s.Income.Sub(s.Expense)), "set %d", i)
	}

	s := Summarize(sets[2])
	assert.Equal(t, "12.3", s.Income.String())
}

func TestSummarize_DefensiveAmounts(t *testing.T) {
	records := []core.Record{
		rec(core.Income, 100, "salary", "2024-01-01"),
		{Kind: core.Income, Amount: decimal.Zero, Date: "2024-01-01"},
		{Kind: core.Expense, Amount: dec(-50), Date: "2024-01-01"},
		{Kind: "transfer", Amount: dec(999), Date: "2024-01-01"},
	}
	s := Summarize(records)
	assert.True(t, s.Income.Equal(dec(100)))
	assert.True(t, s.Expense.IsZero())
}

func TestBreakdown_TopEightSortedDescending(t *testing.T) {
	keys := []string{"food", "transport", "shopping", "entertainment", "health",
		"education", "utilities", "rent", "travel", "subscriptions"}
	var records []core.Record
	for i, key := range keys {
		records = append(records, rec(core.Expense, int64(10*(i+1)), key, "2024-01-01"))
	}
	records = append(records, rec(core.Income, 5000, "salary", "2024-01-01"))

	got := Breakdown(records)

	require.Len(t, got, MaxBreakdown)
	assert.Equal(t, "subscriptions", got[0].Category)
	for i := 1; i < len(got); i++ {
		assert.Truef(t, got[i-1].Value.GreaterThanOrEqual(got[i].Value), "entry %d out of order", i)
	}
	for _, ct := range got {
		assert.NotEqual(t, "salary", ct.Category)
	}
}

func TestBreakdown_TiesKeepFirstSeenOrder(t *testing.T) {
	records := []core.Record{
		rec(core.Expense, 50, "travel", "2024-01-01"),
		rec(core.Expense, 50, "food", "2024-01-02"),
		rec(core.Expense, 20, "travel", "2024-01-03"),
		rec(core.Expense, 20, "food", "2024-01-04"),
		rec(core.Expense, 70, "health", "2024-01-05"),
	}

	got := Breakdown(records)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"travel", "food", "health"}, []string{got[0].Category, got[1].Category, got[2].Category})
}

func TestBreakdown_UnknownCategoryFallsBack(t *testing.T) {
	got := Breakdown([]core.Record{rec(core.Expense, 10, "legacy_key", "2024-01-01")})

	require.Len(t, got, 1)
	assert.Equal(t, "legacy_key", got[0].Name)
	assert.Equal(t, "#94a3b8", got[0].Color)
}

func TestTrend_LastSixMonthsAscending(t *testing.T) {
	var records []core.Record
	start := time.Date(2023, time.September, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 9; i++ {
		records = append(records, rec(core.Expense, int64(i+1), "food", core.DateOf(start.AddDate(0, i, 0))))
	}
	// newest first, as the session delivers them
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	got := Trend(records)

	require.Len(t, got, MaxTrend)
	assert.Equal(t, "Dec 2023", got[0].Label)
	assert.Equal(t, "May 2024", got[len(got)-1].Label)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Month.Before(got[i].Month))
	}
}

func TestTrend_SkipsUnparseableDates(t *testing.T) {
	records := []core.Record{
		rec(core.Income, 100, "salary", "2024-01-01"),
		rec(core.Income, 50, "gift", "someday"),
	}

	got := Aggregate(records)

	assert.True(t, got.Summary.Income.Equal(dec(150)))
	require.Len(t, got.Trend, 1)
	assert.True(t, got.Trend[0].Income.Equal(dec(100)))
}

func TestTrend_NoSynthesizedMonths(t *testing.T) {
	got := Trend([]core.Record{
		rec(core.Expense, 1, "food", "2024-01-01"),
		rec(core.Expense, 1, "food", "2024-04-01"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Jan 2024", got[0].Label)
	assert.Equal(t, "Apr 2024", got[1].Label)
}
