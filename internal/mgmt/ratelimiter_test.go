package mgmt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterLocksOutAfterThreshold(t *testing.T) {
	r := NewRateLimiter()
	ip := "10.0.0.1"

	for i := 0; i < lockoutThreshold-1; i++ {
		r.RecordFailure(ip)
		assert.False(t, r.IsLockedOut(ip))
	}

	r.RecordFailure(ip)
	assert.True(t, r.IsLockedOut(ip))
}

func TestRateLimiterSuccessClearsEntry(t *testing.T) {
	r := NewRateLimiter()
	ip := "10.0.0.2"

	for i := 0; i < lockoutThreshold; i++ {
		r.RecordFailure(ip)
	}
	assert.True(t, r.IsLockedOut(ip))

	r.RecordSuccess(ip)
	assert.False(t, r.IsLockedOut(ip))

	e := r.find(ip)
	if e != nil {
		assert.Equal(t, 0, e.failures)
	}
}

func TestRateLimiterLockoutExpires(t *testing.T) {
	r := NewRateLimiter()
	ip := "10.0.0.3"
	for i := 0; i < lockoutThreshold; i++ {
		r.RecordFailure(ip)
	}
	r.mu.Lock()
	e := r.find(ip)
	e.lockoutUntil = time.Now().Add(-time.Second)
	r.mu.Unlock()

	assert.False(t, r.IsLockedOut(ip))
}

func TestRateLimiterEvictsOldestSlotWhenFull(t *testing.T) {
	r := NewRateLimiter()
	for i := 0; i < maxRateLimitEntries; i++ {
		r.RecordFailure(ipFor(i))
	}
	for i := 0; i < maxRateLimitEntries; i++ {
		assert.NotNil(t, r.find(ipFor(i)), "slot %d should still be present", i)
	}

	overflowIP := "10.0.0.255"
	r.RecordFailure(overflowIP)
	assert.NotNil(t, r.find(overflowIP))
	assert.Nil(t, r.find(ipFor(0)), "overflow should have overwritten slot 0")
}

func ipFor(i int) string {
	return fmt.Sprintf("10.1.0.%d", i)
}
