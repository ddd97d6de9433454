package blob

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	r := NewRegistry(nil)

	h := r.Acquire([]byte("abc"))
	assert.Equal(t, 1, r.Live())
	assert.Equal(t, 3, h.Size())
	assert.Equal(t, "abc", string(h.Bytes()))

	r.Release(h)
	assert.Zero(t, r.Live())
	assert.Nil(t, h.Bytes())

	// Double release and nil are no-ops.
	r.Release(h)
	r.Release(nil)
	assert.Zero(t, r.Live())
}

func TestAcquire_UniqueIDs(t *testing.T) {
	r := NewRegistry(nil)

	a := r.Acquire(nil)
	b := r.Acquire(nil)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestWith_ReleasesOnSuccess(t *testing.T) {
	r := NewRegistry(nil)

	var seen int

	err := r.With([]byte("hello"), func(h *Handle) error {
		seen = h.Size()
		assert.Equal(t, 1, r.Live())

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, seen)
	assert.Zero(t, r.Live())
}

func TestWith_ReleasesOnError(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("disk full")

	err := r.With([]byte("x"), func(*Handle) error { return boom })

	require.ErrorIs(t, err, boom)
	assert.Zero(t, r.Live())
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	r := NewRegistry(nil)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = r.With([]byte("x"), func(*Handle) error { panic("kaboom") })
	})

	assert.Zero(t, r.Live())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = r.With([]byte("data"), func(*Handle) error { return nil })
		}()
	}

	wg.Wait()
	assert.Zero(t, r.Live())
}
