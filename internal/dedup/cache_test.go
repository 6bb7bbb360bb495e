package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_FirstSightingProcesses(t *testing.T) {
	c := New()
	fp := FromOffset("compliance.fraud-alerts", 0, 42)

	assert.True(t, c.ShouldProcess(fp))
	c.MarkProcessed(fp)
	assert.False(t, c.ShouldProcess(fp))
}

func TestCache_ExpiredRecordProcessesAgain(t *testing.T) {
	current := time.Now()
	c := New(WithClock(func() time.Time { return current }))
	fp := FromSubject("cust-1", "FRAUD_ALERT", current)

	c.MarkProcessed(fp)
	require.False(t, c.ShouldProcess(fp))

	current = current.Add(DefaultTTL + time.Minute)
	assert.True(t, c.ShouldProcess(fp))
	assert.Equal(t, 0, c.Len(), "expired record should be removed on lookup")
}

func TestCache_SweepEvictsOnlyExpired(t *testing.T) {
	current := time.Now()
	c := New(WithClock(func() time.Time { return current }), WithSweepThreshold(10))

	for i := range 10 {
		c.MarkProcessed(Fingerprint(fmt.Sprintf("old-%d", i)))
	}
	current = current.Add(DefaultTTL + time.Minute)

	// The 11th insert crosses the bound and triggers the sweep.
	c.MarkProcessed(Fingerprint("fresh"))
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.ShouldProcess(Fingerprint("fresh")))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				fp := FromOffset("topic", int32(i), int64(j))
				if c.ShouldProcess(fp) {
					c.MarkProcessed(fp)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3200, c.Len())
}

func TestFingerprint_Derivations(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	assert.Equal(t, Fingerprint("cust-9|CASH_DEPOSIT|1700000000000"), FromSubject("cust-9", "CASH_DEPOSIT", ts))
	assert.Equal(t, Fingerprint("t|3|77"), FromOffset("t", 3, 77))
}
