package filter

import (
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
)

func sample() []core.Record {
	return []core.Record{
		{ID: "1", Title: "Monthly Salary", Amount: decimal.NewFromInt(1000), Kind: core.Income, Category: "salary", Date: "2024-02-01"},
		{ID: "2", Title: "Groceries", Amount: decimal.NewFromInt(80), Kind: core.Expense, Category: "food", Date: "2024-01-20"},
		{ID: "3", Title: "Bus pass", Amount: decimal.NewFromInt(30), Kind: core.Expense, Category: "transport", Date: "2024-01-12"},
		{ID: "4", Title: "Salary bonus", Amount: decimal.NewFromInt(200), Kind: core.Income, Category: "salary", Date: "2024-01-10"},
		{ID: "5", Title: "Dinner out", Amount: decimal.NewFromInt(45), Kind: core.Expense, Category: "food", Date: "2023-12-31"},
	}
}

func ids(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestApply_DefaultIsIdentity(t *testing.T) {
	records := sample()
	assert.Equal(t, records, Apply(records, Default()))
	assert.Equal(t, records, Apply(records, Criteria{}))
}

func TestApply_ExpenseOnlyKeepsOrder(t *testing.T) {
	got := Apply(sample(), Criteria{Kind: core.Expense, Category: All})
	assert.Equal(t, []string{"2", "3", "5"}, ids(got))
}

func TestApply_Criteria(t *testing.T) {
	cases := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"search is case-insensitive", Criteria{Search: "SALARY"}, []string{"1", "4"}},
		{"search only looks at title", Criteria{Search: "food"}, []string{}},
		{"category", Criteria{Category: "food"}, []string{"2", "5"}},
		{"from inclusive", Criteria{From: "2024-01-12"}, []string{"1", "2", "3"}},
		{"to inclusive", Criteria{To: "2024-01-10"}, []string{"4", "5"}},
		{"range", Criteria{From: "2024-01-10", To: "2024-01-20"}, []string{"2", "3", "4"}},
		{"combined with AND", Criteria{Search: "s", Kind: core.Expense, From: "2024-01-01"}, []string{"2", "3"}},
		{"nothing matches", Criteria{Kind: core.Income, Category: "food"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(Apply(sample(), tc.c)))
		})
	}
}

func TestApply_IdempotentAndPure(t *testing.T) {
	records := sample()
	before := append([]core.Record(nil), records...)
	c := Criteria{Search: "a", Kind: core.Expense}

	once := Apply(records, c)
	twice := Apply(once, c)

	assert.Equal(t, once, twice)
	assert.Equal(t, once, Apply(records, c))
	assert.Equal(t, before, records)
}

func TestIsActive(t *testing.T) {
	assert.False(t, Default().IsActive())
	assert.False(t, Criteria{}.IsActive())
	assert.True(t, Criteria{Search: "x"}.IsActive())
	assert.True(t, Criteria{Kind: core.Income}.IsActive())
	assert.True(t, Criteria{To: "2024-01-01"}.IsActive())
}

func TestParseQuery(t *testing.T) {
	q, err := url.ParseQuery("search=bus&type=Expense&category=transport&from=2024-01-01&to=2024-01-31")
	require.NoError(t, err)

	c := ParseQuery(q)

	assert.Equal(t, Criteria{Search: "bus", Kind: core.Expense, Category: "transport", From: "2024-01-01", To: "2024-01-31"}, c)
	assert.Equal(t, Default(), ParseQuery(url.Values{}))
}
