package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsInPostOrder(t *testing.T) {
	d := NewDispatcher(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, d.Do(func() {}))

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestDispatcher_SingleWriter(t *testing.T) {
	d := NewDispatcher(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Do(func() { counter++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}

func TestDispatcher_Stopped(t *testing.T) {
	d := NewDispatcher(1)
	d.Stop()
	d.Stop()

	assert.False(t, d.Post(func() {}))
	assert.ErrorIs(t, d.Do(func() {}), ErrDispatcherStopped)
}

func TestDispatcher_PostUnlessGivesUpOnCancel(t *testing.T) {
	d := NewDispatcher(1)
	require.True(t, d.Post(func() {}))

	cancel := make(chan struct{})
	result := make(chan bool, 1)
	go func() { result <- d.PostUnless(func() {}, cancel) }()

	close(cancel)
	select {
	case posted := <-result:
		assert.False(t, posted)
	case <-time.After(5 * time.Second):
		t.Fatal("PostUnless stayed blocked on a full mailbox")
	}
	assert.False(t, d.PostUnless(func() {}, cancel))
}
