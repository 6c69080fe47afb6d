package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/feed"
	"tally/internal/identity"
	"tally/internal/log"
)

// fakeFeed keeps every subscription so tests can deliver snapshots and
// errors by hand, including to subscriptions that were already replaced.
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
}

type fakeSub struct {
	owner      string
	onSnapshot feed.SnapshotFunc
	onError    feed.ErrorFunc
	closed     bool
}

func (f *fakeFeed) Subscribe(ownerID string, onSnapshot feed.SnapshotFunc, onError feed.ErrorFunc) feed.Unsubscribe {
	sub := &fakeSub{owner: ownerID, onSnapshot: onSnapshot, onError: onError}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		sub.closed = true
		f.mu.Unlock()
	}
}

func (f *fakeFeed) sub(t *testing.T, i int) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.subs), i)
	return f.subs[i]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func rec(id, owner, date string) core.Record {
	return core.Record{
		ID:       id,
		OwnerID:  owner,
		Title:    id,
		Amount:   decimal.NewFromInt(10),
		Kind:     core.Expense,
		Category: "food",
		Date:     core.Date(date),
	}
}

func ids(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func newSession() (*Session, *fakeFeed) {
	f := &fakeFeed{}
	return New(f, log.Discard()), f
}

func TestNew_IsIdleAndEmpty(t *testing.T) {
	s, _ := newSession()
	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.NotNil(t, st.Records)
	assert.Empty(t, st.Records)
}

func TestOpen_LoadingUntilFirstSnapshot(t *testing.T) {
	s, f := newSession()

	s.Open("alice")
	st := s.State()
	assert.Equal(t, StatusLoading, st.Status)
	assert.Equal(t, "alice", st.Owner)
	assert.NotNil(t, st.Records)
	assert.Empty(t, st.Records)

	f.sub(t, 0).onSnapshot([]core.Record{rec("a", "alice", "2024-03-01")})
	st = s.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, []string{"a"}, ids(st.Records))
}

func TestOpen_SameOwnerIsNoop(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	s.Open("alice")
	assert.Equal(t, 1, f.count())
}

func TestOpen_EmptySnapshotIsReady(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	f.sub(t, 0).onSnapshot(nil)

	st := s.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.NotNil(t, st.Records)
	assert.Empty(t, st.Records)
}

func TestSnapshot_SortedNewestFirstAndStable(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	f.sub(t, 0).onSnapshot([]core.Record{
		rec("old", "alice", "2024-01-05"),
		rec("tie1", "alice", "2024-02-10"),
		rec("new", "alice", "2024-03-01"),
		rec("tie2", "alice", "2024-02-10"),
	})

	assert.Equal(t, []string{"new", "tie1", "tie2", "old"}, ids(s.State().Records))
}

func TestSnapshot_ReplacesWholeSet(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	sub := f.sub(t, 0)
	sub.onSnapshot([]core.Record{rec("a", "alice", "2024-03-01"), rec("b", "alice", "2024-03-02")})
	sub.onSnapshot([]core.Record{rec("c", "alice", "2024-03-03")})

	assert.Equal(t, []string{"c"}, ids(s.State().Records))
}

func TestSnapshot_DropsForeignRecords(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	f.sub(t, 0).onSnapshot([]core.Record{
		rec("mine", "alice", "2024-03-01"),
		rec("theirs", "bob", "2024-03-02"),
	})

	assert.Equal(t, []string{"mine"}, ids(s.State().Records))
}

func TestIdentitySwitch_ResetsAndIgnoresStaleSnapshot(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	aliceSub := f.sub(t, 0)
	aliceSub.onSnapshot([]core.Record{rec("a", "alice", "2024-03-01")})

	s.Open("bob")
	assert.True(t, aliceSub.closed)
	st := s.State()
	assert.Equal(t, "bob", st.Owner)
	assert.Equal(t, StatusLoading, st.Status)
	assert.Empty(t, st.Records)

	// late delivery from the replaced subscription
	aliceSub.onSnapshot([]core.Record{rec("a2", "alice", "2024-03-02")})
	aliceSub.onError(errors.New("late"))
	st = s.State()
	assert.Equal(t, StatusLoading, st.Status)
	assert.Empty(t, st.Records)

	f.sub(t, 1).onSnapshot([]core.Record{rec("b", "bob", "2024-03-01")})
	assert.Equal(t, []string{"b"}, ids(s.State().Records))
}

func TestError_ClearsRecordsAndRetryReopens(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	first := f.sub(t, 0)
	first.onSnapshot([]core.Record{rec("a", "alice", "2024-03-01")})

	boom := errors.New("permission denied")
	first.onError(boom)

	st := s.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Empty(t, st.Records)
	var syncErr *SyncError
	require.ErrorAs(t, st.Err, &syncErr)
	assert.Equal(t, "alice", syncErr.Owner)
	assert.ErrorIs(t, st.Err, boom)
	assert.True(t, first.closed)

	// no snapshot after the error changes anything
	first.onSnapshot([]core.Record{rec("x", "alice", "2024-03-01")})
	assert.Equal(t, StatusError, s.State().Status)

	s.Retry()
	require.Equal(t, 2, f.count())
	assert.Equal(t, StatusLoading, s.State().Status)
	f.sub(t, 1).onSnapshot([]core.Record{rec("a", "alice", "2024-03-01")})
	st = s.State()
	assert.Equal(t, StatusReady, st.Status)
	assert.NoError(t, st.Err)
}

func TestRetry_NoopUnlessFailed(t *testing.T) {
	s, f := newSession()
	s.Retry()
	s.Open("alice")
	s.Retry()
	assert.Equal(t, 1, f.count())
}

func TestClose(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	sub := f.sub(t, 0)
	sub.onSnapshot([]core.Record{rec("a", "alice", "2024-03-01")})

	s.Close()
	assert.True(t, sub.closed)
	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, "", st.Owner)
	assert.Empty(t, st.Records)

	sub.onSnapshot([]core.Record{rec("b", "alice", "2024-03-02")})
	assert.Equal(t, StatusIdle, s.State().Status)

	s.Close()
}

func TestOpen_EmptyOwnerCloses(t *testing.T) {
	s, f := newSession()
	s.Open("alice")
	s.Open("")
	assert.True(t, f.sub(t, 0).closed)
	assert.Equal(t, StatusIdle, s.State().Status)
}

func TestListeners_SeeEveryTransitionInOrder(t *testing.T) {
	s, f := newSession()
	var first, second []Status
	s.Listen(func(st State) { first = append(first, st.Status) })
	stop := s.Listen(func(st State) { second = append(second, st.Status) })

	s.Open("alice")
	f.sub(t, 0).onSnapshot(nil)
	stop()
	s.Close()

	assert.Equal(t, []Status{StatusLoading, StatusReady, StatusIdle}, first)
	assert.Equal(t, []Status{StatusLoading, StatusReady}, second)
}

func TestListeners_VersionIncreases(t *testing.T) {
	s, f := newSession()
	var versions []uint64
	s.Listen(func(st State) { versions = append(versions, st.Version) })

	s.Open("alice")
	f.sub(t, 0).onSnapshot(nil)
	f.sub(t, 0).onSnapshot(nil)

	require.Len(t, versions, 3)
	assert.Less(t, versions[0], versions[1])
	assert.Less(t, versions[1], versions[2])
}

func TestFollow_TracksIdentity(t *testing.T) {
	s, f := newSession()
	p := identity.NewStatic("alice")

	stop := s.Follow(p)
	assert.Equal(t, "alice", s.State().Owner)

	p.SignIn("bob")
	assert.Equal(t, "bob", s.State().Owner)
	assert.True(t, f.sub(t, 0).closed)

	p.SignOut()
	assert.Equal(t, StatusIdle, s.State().Status)

	stop()
	p.SignIn("carol")
	assert.Equal(t, StatusIdle, s.State().Status)
	assert.Equal(t, 2, f.count())
}
