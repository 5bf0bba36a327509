package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	r.Register("job-1", func() error { return nil })

	fn, ok := r.Get("job-1")
	assert.True(t, ok)
	assert.NoError(t, fn())
}

func TestRegistry_RegisterReplacesExisting(t *testing.T) {
	r := New()
	r.Register("job-1", func() error { return errors.New("old") })
	r.Register("job-1", func() error { return errors.New("new") })

	fn, ok := r.Get("job-1")
	assert.True(t, ok)
	assert.EqualError(t, fn(), "new")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register("job-1", func() error { return nil })
	r.Unregister("job-1")

	_, ok := r.Get("job-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_GetMissing(t *testing.T) {
	r := New()
	_, ok := r.Get("unknown")
	assert.False(t, ok)
}
