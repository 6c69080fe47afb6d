package http

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/aggregate"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/filter"
	"tally/internal/log"
	"tally/internal/session"
)

type (
	// SummaryView is a summary with display strings alongside the amounts.
	SummaryView struct {
		aggregate.Summary
		IncomeText  string `json:"incomeText"`
		ExpenseText string `json:"expenseText"`
		BalanceText string `json:"balanceText"`
		Count       int    `json:"count"`
	}

	// TransactionView is a record decorated for display.
	TransactionView struct {
		core.Record
		SignedAmount  decimal.Decimal `json:"signedAmount"`
		AmountText    string          `json:"amountText"`
		DateText      string          `json:"dateText"`
		DateInput     string          `json:"dateInput"`
		MonthLabel    string          `json:"monthLabel"`
		CategoryLabel string          `json:"categoryLabel"`
		CategoryIcon  string          `json:"categoryIcon"`
		CategoryColor string          `json:"categoryColor"`
	}

	// View is everything a client renders for one owner and filter.
	View struct {
		Status          session.Status            `json:"status"`
		Error           string                    `json:"error,omitempty"`
		Version         uint64                    `json:"version"`
		Summary         SummaryView               `json:"summary"`
		Breakdown       []aggregate.CategoryTotal `json:"breakdown"`
		Trend           []aggregate.MonthTotal    `json:"trend"`
		Filter          filter.Criteria           `json:"filter"`
		FilterActive    bool                      `json:"filterActive"`
		Transactions    []TransactionView         `json:"transactions"`
		FilteredSummary SummaryView               `json:"filteredSummary"`
	}
)

// Views keeps one live session per owner for request handlers and
// derives views from the session state. Sessions idle longer than the
// idle timeout are closed by Sweep.
type Views struct {
	feed   feed.Subscriber
	cache  cache.Cache[View]
	symbol string
	idle   time.Duration
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*ownerSession
}

type ownerSession struct {
	sess     *session.Session
	stop     func()
	lastUsed time.Time

	mu      sync.Mutex
	changed chan struct{}
}

// NewViews creates a view service over sub. viewCache may be nil.
func NewViews(sub feed.Subscriber, viewCache cache.Cache[View], symbol string, idle time.Duration, logger *log.Logger) *Views {
	if logger == nil {
		logger = log.Discard()
	}
	if symbol == "" {
		symbol = core.DefaultCurrency
	}
	return &Views{
		feed:     sub,
		cache:    viewCache,
		symbol:   symbol,
		idle:     idle,
		logger:   logger.WithComponent(log.ComponentHTTP),
		now:      time.Now,
		sessions: make(map[string]*ownerSession),
	}
}

// State waits until owner's session has left the loading status and
// returns its state. It returns early with ctx's error.
func (v *Views) State(ctx context.Context, owner string) (session.State, error) {
	os := v.acquire(owner)
	for {
		os.mu.Lock()
		changed := os.changed
		os.mu.Unlock()

		st := os.sess.State()
		if st.Status != session.StatusLoading {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// Retry reopens owner's session after a sync error.
func (v *Views) Retry(owner string) {
	v.acquire(owner).sess.Retry()
}

// Build derives the view of st under criteria, reusing a cached copy
// computed from the same session version.
func (v *Views) Build(st session.State, criteria filter.Criteria) View {
	key := cache.ViewKey(st.Owner, st.Version, criteria.Key())
	if v.cache != nil && st.Status == session.StatusReady {
		if view, ok := v.cache.Get(key); ok {
			return view
		}
	}

	view := BuildView(st, criteria, v.symbol)
	if v.cache != nil && st.Status == session.StatusReady {
		v.cache.Set(key, view)
	}
	return view
}

// BuildView derives the view of st under criteria. Totals, breakdown and
// trend always cover the whole record set; only the transaction list and
// its summary follow the filter.
func BuildView(st session.State, criteria filter.Criteria, symbol string) View {
	report := aggregate.Aggregate(st.Records)
	filtered := filter.Apply(st.Records, criteria)

	view := View{
		Status:          st.Status,
		Version:         st.Version,
		Summary:         summaryView(report.Summary, len(st.Records), symbol),
		Breakdown:       report.Breakdown,
		Trend:           report.Trend,
		Filter:          criteria,
		FilterActive:    criteria.IsActive(),
		Transactions:    make([]TransactionView, 0, len(filtered)),
		FilteredSummary: summaryView(aggregate.Summarize(filtered), len(filtered), symbol),
	}
	if st.Err != nil {
		view.Error = st.Err.Error()
	}
	for _, r := range filtered {
		view.Transactions = append(view.Transactions, transactionView(r, symbol))
	}
	return view
}

// Sweep closes sessions unused for longer than the idle timeout and drops
// their cached views.
func (v *Views) Sweep() int {
	if v.idle <= 0 {
		return 0
	}
	cutoff := v.now().Add(-v.idle)

	v.mu.Lock()
	var stale []string
	var closing []*ownerSession
	for owner, os := range v.sessions {
		if os.lastUsed.Before(cutoff) {
			stale = append(stale, owner)
			closing = append(closing, os)
			delete(v.sessions, owner)
		}
	}
	v.mu.Unlock()

	for i, os := range closing {
		os.stop()
		os.sess.Close()
		if v.cache != nil {
			v.cache.DeletePrefix(cache.OwnerPrefix(stale[i]))
		}
	}
	if len(stale) > 0 {
		v.logger.Debug("Closed idle sessions", log.FieldCount, len(stale))
	}
	return len(stale)
}

// CleanExpired lets a cache.Manager drive Sweep.
func (v *Views) CleanExpired() int {
	return v.Sweep()
}

// Sessions returns the number of open owner sessions.
func (v *Views) Sessions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.sessions)
}

// Close closes every session.
func (v *Views) Close() {
	v.mu.Lock()
	sessions := v.sessions
	v.sessions = make(map[string]*ownerSession)
	v.mu.Unlock()
	for _, os := range sessions {
		os.stop()
		os.sess.Close()
	}
}

func (v *Views) acquire(owner string) *ownerSession {
	v.mu.Lock()
	defer v.mu.Unlock()

	if os, ok := v.sessions[owner]; ok {
		os.lastUsed = v.now()
		return os
	}

	os := &ownerSession{
		sess:     session.New(v.feed, v.logger),
		lastUsed: v.now(),
		changed:  make(chan struct{}),
	}
	os.stop = os.sess.Listen(func(session.State) {
		os.mu.Lock()
		close(os.changed)
		os.changed = make(chan struct{})
		os.mu.Unlock()
	})
	os.sess.Open(owner)
	v.sessions[owner] = os
	return os
}

func summaryView(s aggregate.Summary, count int, symbol string) SummaryView {
	return SummaryView{
		Summary:     s,
		IncomeText:  core.FormatCurrency(s.Income, symbol),
		ExpenseText: core.FormatCurrency(s.Expense, symbol),
		BalanceText: core.FormatCurrency(s.Balance, symbol),
		Count:       count,
	}
}

func transactionView(r core.Record, symbol string) TransactionView {
	cat := core.Lookup(r.Category)
	return TransactionView{
		Record:        r,
		SignedAmount:  r.Signed(),
		AmountText:    core.FormatCurrency(r.Amount, symbol),
		DateText:      core.FormatDate(r.Date),
		DateInput:     core.FormatDateInput(r.Date),
		MonthLabel:    core.MonthLabel(r.Date),
		CategoryLabel: cat.Label,
		CategoryIcon:  cat.Icon,
		CategoryColor: cat.Color,
	}
}
