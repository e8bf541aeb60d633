package window

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC)

func TestAllowFixedWindow(t *testing.T) {
	t.Parallel()

	l := New(Config{Window: time.Minute, Limit: 60, Paths: map[string]int{"/crawl": 2}})

	first := l.Allow("1.2.3.4", "/crawl", t0)
	require.True(t, first.Allowed)
	require.Equal(t, 2, first.Limit)
	require.Equal(t, 1, first.Remaining)
	require.Equal(t, t0.Add(time.Minute), first.Reset)

	second := l.Allow("1.2.3.4", "/crawl", t0.Add(10*time.Second))
	require.True(t, second.Allowed)
	require.Zero(t, second.Remaining)

	third := l.Allow("1.2.3.4", "/crawl", t0.Add(20*time.Second))
	require.False(t, third.Allowed)
	require.Zero(t, third.Remaining)
	require.Equal(t, 40*time.Second, third.RetryAfter)

	// Another caller and another path have their own windows.
	require.True(t, l.Allow("5.6.7.8", "/crawl", t0.Add(20*time.Second)).Allowed)
	other := l.Allow("1.2.3.4", "/healthz", t0.Add(20*time.Second))
	require.True(t, other.Allowed)
	require.Equal(t, 60, other.Limit)

	// The window resets.
	next := l.Allow("1.2.3.4", "/crawl", t0.Add(time.Minute))
	require.True(t, next.Allowed)
	require.Equal(t, 1, next.Remaining)
}

func TestSweepDropsIdleKeys(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Allow("a", "/crawl", t0)
	l.Allow("b", "/crawl", t0.Add(23*time.Hour))
	require.Equal(t, 2, l.Len())

	require.Equal(t, 1, l.Sweep(t0.Add(24*time.Hour+time.Second)))
	require.Equal(t, 1, l.Len())
	require.Zero(t, l.Sweep(t0.Add(24*time.Hour+2*time.Second)))
}

func TestAllowConcurrent(t *testing.T) {
	t.Parallel()

	l := New(Config{Limit: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("c", "/crawl", t0).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, allowed)
}
