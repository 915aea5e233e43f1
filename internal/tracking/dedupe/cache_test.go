package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"card-server/internal/tracking/events"

	"github.com/stretchr/testify/assert"
)

func TestSeenRecordsAndDetects(t *testing.T) {
	cache := New(100, time.Hour)

	assert.False(t, cache.Seen("evt-1", events.Purchase))
	assert.True(t, cache.Seen("evt-1", events.Purchase))
	assert.False(t, cache.Seen("evt-2", events.PageView))
}

func TestCapacityEvictsOldestFraction(t *testing.T) {
	cache := New(100, time.Hour)

	for i := 0; i < 100; i++ {
		cache.Seen(fmt.Sprintf("evt-%d", i), events.PageView)
	}
	assert.Equal(t, 100, cache.Len())

	// The insert that overflows capacity evicts the oldest 10% in one sweep.
	cache.Seen("evt-overflow", events.PageView)
	assert.Equal(t, 91, cache.Len())

	// The oldest tenth was forgotten and would be treated as new again.
	assert.False(t, cache.Seen("evt-0", events.PageView))
	// Recent ids are still remembered.
	assert.True(t, cache.Seen("evt-99", events.PageView))
}

func TestRetentionEvictsByAge(t *testing.T) {
	cache := New(100, time.Hour)
	current := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Seen("evt-old", events.PageView)

	current = current.Add(2 * time.Hour)
	assert.False(t, cache.Seen("evt-old", events.PageView),
		"entries older than the retention window are forgotten")
}

func TestConcurrentSeenExactlyOneWinner(t *testing.T) {
	cache := New(1000, time.Hour)

	const goroutines = 50
	var wg sync.WaitGroup
	newCount := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.Seen("evt-contended", events.Purchase) {
				newCount <- true
			}
		}()
	}
	wg.Wait()
	close(newCount)

	winners := 0
	for range newCount {
		winners++
	}
	assert.Equal(t, 1, winners, "exactly one caller must observe the id as new")
}
