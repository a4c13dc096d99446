package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmit(t *testing.T) {
	p, err := New("test", &Config{Capacity: 4})
	require.NoError(t, err)
	defer p.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	got := make(map[int]bool)

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			got[i] = true
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, got, 10)

	submitted, completed := p.Stats()
	assert.Equal(t, int64(10), submitted)
	assert.Equal(t, int64(10), completed)
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	p, err := New("test", &Config{Capacity: 2})
	require.NoError(t, err)

	p.Release()

	err = p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolSubmitWithCancelledContext(t *testing.T) {
	p, err := New("test", &Config{Capacity: 2})
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.SubmitWithContext(ctx, func() {
		t.Error("task must not run with a cancelled context")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolDefaultConfig(t *testing.T) {
	p, err := New("test", nil)
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, "test", p.Name())
}
