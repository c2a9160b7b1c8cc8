package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeys(t *testing.T) {
	keys := NewKeys("sku-42", 1700000000123, ".png")
	assert.Equal(t, "images/sku-42_1700000000123_raw.png", keys.Raw)
	assert.Equal(t, "images/sku-42_1700000000123_processed.webp", keys.Processed)

	keys = NewKeys("red/blue shirt", 5, ".jpg")
	assert.Equal(t, "images/red_blue_shirt_5_raw.jpg", keys.Raw)

	keys = NewKeys("  ", 5, ".jpg")
	assert.Equal(t, "images/unknown_5_raw.jpg", keys.Raw)
}

func TestKeyClockNeverRepeats(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	clock := NewKeyClock(func() time.Time { return frozen })

	assert.Equal(t, int64(1_700_000_000_000), clock.Next())
	assert.Equal(t, int64(1_700_000_000_001), clock.Next())
	assert.Equal(t, int64(1_700_000_000_002), clock.Next())
}

func TestKeyClockFollowsWallClock(t *testing.T) {
	now := time.UnixMilli(1_000)
	clock := NewKeyClock(func() time.Time { return now })

	assert.Equal(t, int64(1_000), clock.Next())
	now = time.UnixMilli(5_000)
	assert.Equal(t, int64(5_000), clock.Next())
}

func TestKeyClockConcurrentUnique(t *testing.T) {
	clock := NewKeyClock(func() time.Time { return time.UnixMilli(42) })

	const goroutines, perGoroutine = 8, 200
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, goroutines*perGoroutine)
		wg   sync.WaitGroup
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				token := clock.Next()
				mu.Lock()
				seen[token] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*perGoroutine)
}
