package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rahul/commander/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

var overworld = Fingerprint{Dimension: "minecraft:overworld", ToolTiers: "i/s/n", InventoryBucket: "7:3"}

func minePlan(n int) action.Plan {
	return action.Single(action.Harvest{ResourceID: "minecraft:iron_ore", Count: n}, fmt.Sprintf("mine %d", n))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "mine iron", Key("  Mine   IRON ", Fingerprint{}))
	assert.Equal(t, "mine iron|dim:minecraft:overworld|tools:i/s/n|inv:7:3", Key("mine iron", overworld))
}

func TestPutGet(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	p := minePlan(5)
	require.True(t, c.Put("mine iron", overworld, p))

	got, ok := c.Get("MINE  iron", overworld)
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = c.Get("mine iron", Fingerprint{Dimension: "minecraft:the_nether"})
	assert.False(t, ok, "different context must miss")
}

func TestTTL(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	require.True(t, c.Put("mine iron", overworld, minePlan(1)))

	clock.Advance(DefaultTTL - time.Second)
	_, ok := c.Get("mine iron", overworld)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("mine iron", overworld)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on lookup")
}

func TestTTLIndependentOfAccess(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	require.True(t, c.Put("mine iron", overworld, minePlan(1)))

	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Second)
		_, ok := c.Get("mine iron", overworld)
		require.True(t, ok)
	}
	clock.Advance(10 * time.Second)
	_, ok := c.Get("mine iron", overworld)
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(WithClock(newClock().Now))

	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, c.Put(fmt.Sprintf("cmd %d", i), overworld, minePlan(i+1)))
	}

	// touch cmd 0 so cmd 1 becomes the oldest
	_, ok := c.Get("cmd 0", overworld)
	require.True(t, ok)

	require.True(t, c.Put("cmd 20", overworld, minePlan(21)))
	assert.Equal(t, DefaultCapacity, c.Len())

	_, ok = c.Get("cmd 1", overworld)
	assert.False(t, ok, "least recently used key is evicted")
	for _, k := range []string{"cmd 0", "cmd 2", "cmd 19", "cmd 20"} {
		_, ok := c.Get(k, overworld)
		assert.True(t, ok, k)
	}
}

func TestEvictionIgnoresExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now), WithCapacity(2))

	require.True(t, c.Put("a", overworld, minePlan(1)))
	clock.Advance(time.Second)
	require.True(t, c.Put("b", overworld, minePlan(2)))
	require.True(t, c.Put("c", overworld, minePlan(3)))

	_, ok := c.Get("a", overworld)
	assert.False(t, ok)
	_, ok = c.Get("b", overworld)
	assert.True(t, ok)
}

func TestRejectsClarificationPlans(t *testing.T) {
	c := New()
	p := action.Plan{
		Actions: []action.Action{action.AskClarification{Question: "which chest?"}},
		Summary: "asking",
	}
	assert.False(t, c.Put("open chest", overworld, p))
	_, ok := c.Get("open chest", overworld)
	assert.False(t, ok)

	assert.False(t, c.Put("nothing", overworld, action.Ack("ok")), "action-less plans are not cached")
}

func TestReturnedPlanIsACopy(t *testing.T) {
	c := New()
	p := action.Single(action.MoveTo{X: 1, Y: action.IntPtr(70), Z: 2}, "go")
	require.True(t, c.Put("go", overworld, p))

	got, _ := c.Get("go", overworld)
	*got.Actions[0].(action.MoveTo).Y = 0

	again, _ := c.Get("go", overworld)
	assert.Equal(t, 70, *again.Actions[0].(action.MoveTo).Y)
}

func TestMarkFailed(t *testing.T) {
	c := New()
	require.True(t, c.Put("mine iron", overworld, minePlan(3)))
	c.MarkFailed("mine iron", overworld)
	_, ok := c.Get("mine iron", overworld)
	assert.False(t, ok)
}

func TestStatsAndClear(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	require.True(t, c.Put("old", overworld, minePlan(1)))
	clock.Advance(DefaultTTL)
	require.True(t, c.Put("new", overworld, minePlan(2)))
	_, _ = c.Get("new", overworld)
	_, _ = c.Get("missing", overworld)

	s := c.Stats()
	assert.Equal(t, 1, s.Live)
	assert.Equal(t, 1, s.Expired)
	assert.Equal(t, DefaultCapacity, s.Capacity)
	assert.Equal(t, 1, s.Hits)
	assert.Equal(t, 1, s.Misses)

	c.Clear()
	assert.Equal(t, Stats{Capacity: DefaultCapacity}, c.Stats())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(WithCapacity(8))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("cmd %d", (g*7+i)%16)
				c.Put(key, overworld, minePlan(i+1))
				c.Get(key, overworld)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
