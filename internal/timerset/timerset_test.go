package timerset

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_ArmFiresAfterDelay(t *testing.T) {
	s := New()
	var fired atomic.Bool

	s.Arm("job-1", 10*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, s.Has("job-1"))

	require.Eventually(t, fired.Load, 200*time.Millisecond, 5*time.Millisecond)
}

func TestSet_ArmReplacesExistingTimer(t *testing.T) {
	s := New()
	var firstFired, secondFired atomic.Bool

	s.Arm("job-1", 20*time.Millisecond, func() { firstFired.Store(true) })
	s.Arm("job-1", 100*time.Millisecond, func() { secondFired.Store(true) })

	time.Sleep(50 * time.Millisecond)
	assert.False(t, firstFired.Load())
	assert.False(t, secondFired.Load())

	require.Eventually(t, secondFired.Load, 300*time.Millisecond, 5*time.Millisecond)
}

func TestSet_Cancel(t *testing.T) {
	s := New()
	var fired atomic.Bool

	s.Arm("job-1", 30*time.Millisecond, func() { fired.Store(true) })
	ok := s.Cancel("job-1")
	assert.True(t, ok)
	assert.False(t, s.Has("job-1"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())

	assert.False(t, s.Cancel("job-1"))
}

func TestSet_Remove(t *testing.T) {
	s := New()
	s.Arm("job-1", time.Hour, func() {})
	s.Remove("job-1")
	assert.False(t, s.Has("job-1"))
}

func TestSet_Clear(t *testing.T) {
	s := New()
	s.Arm("job-1", time.Hour, func() {})
	s.Arm("job-2", time.Hour, func() {})
	assert.Equal(t, 2, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}
