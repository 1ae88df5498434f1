package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostPreservesOrder(t *testing.T) {
	l := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Do(ctx, func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestConcurrentPostersAreSerialized(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, l.Do(ctx, func() { final = counter }))
	assert.Equal(t, 800, final)
}

func TestDoAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
	assert.False(t, l.Post(func() {}))
}

func TestDoSkipsTaskWhenContextExpiresInQueue(t *testing.T) {
	l := New(4)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go l.Run(runCtx)

	release := make(chan struct{})
	l.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	applied := false
	errc := make(chan error, 1)
	go func() { errc <- l.Do(ctx, func() { applied = true }) }()

	<-ctx.Done()
	close(release)

	err := <-errc
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var seen bool
	require.NoError(t, l.Do(context.Background(), func() { seen = applied }))
	assert.False(t, seen)
}

func TestDoReportsSuccessWhenTaskRanPastDeadline(t *testing.T) {
	l := New(4)
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go l.Run(runCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := 0
	err := l.Do(ctx, func() {
		<-ctx.Done()
		result = 42
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestDoWithExpiredContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	assert.ErrorIs(t, l.Do(ctx, func() { ran = true }), context.Canceled)
	assert.False(t, ran)
}
