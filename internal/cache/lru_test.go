package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	c := NewLRUCache[string](size, ttl)
	clk := &clock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "1")
	c.Set("a", "2")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "3")
	clk.t = clk.t.Add(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.CleanExpired())
	_, ok = c.Get("b")
	assert.True(t, ok)

	clk.t = clk.t.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_ZeroTTLNeverExpires(t *testing.T) {
	c, clk := newTestCache(10, 0)
	c.Set("a", "1")
	clk.t = clk.t.Add(24 * time.Hour)
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestLRUCache_ZeroSizeDisables(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	c.Set("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set(ViewKey("alice", 1, "all"), "v1")
	c.Set(ViewKey("alice", 2, "all"), "v2")
	c.Set(ViewKey("alice2", 1, "all"), "other")
	c.Set(ViewKey("bob", 1, "all"), "bob")

	assert.Equal(t, 2, c.DeletePrefix(OwnerPrefix("alice")))
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get(ViewKey("alice2", 1, "all"))
	assert.True(t, ok)
}

func TestViewKey(t *testing.T) {
	assert.NotEqual(t, ViewKey("alice", 1, "x"), ViewKey("alice", 2, "x"))
	assert.NotEqual(t, ViewKey("alice", 1, "x"), ViewKey("alice", 1, "y"))
	assert.NotEqual(t, ViewKey("a|1", 1, "x"), ViewKey("a", 11, "x"))
}

func TestManager_Sweep(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", "1")
	m := NewManager(nil)
	m.Register(c)

	assert.Equal(t, 0, m.Sweep())
	clk.t = clk.t.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
