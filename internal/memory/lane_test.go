// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/memory"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanePool_SerializesPerKey(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := range 3 {
		// Stagger submissions so the lane receives them in order.
		time.Sleep(5 * time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), "s1", func(context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLanePool_KeysRunConcurrently(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), key, func(context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Greater(t, peak.Load(), int32(1))
}

func TestLanePool_ReturnsTaskError(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	boom := errors.New("boom")
	err := pool.Do(context.Background(), "s1", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLanePool_RecoversPanics(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	err := pool.Do(context.Background(), "s1", func(context.Context) error { panic("bad") })
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeMemoryCompressFailure))

	// The lane survives the panic.
	assert.NoError(t, pool.Do(context.Background(), "s1", func(context.Context) error { return nil }))
}

func TestLanePool_CanceledContext(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := pool.Do(ctx, "s1", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestLanePool_Closed(t *testing.T) {
	pool := memory.NewLanePool(nil)
	require.NoError(t, pool.Do(context.Background(), "s1", func(context.Context) error { return nil }))
	pool.Close()

	err := pool.Do(context.Background(), "s1", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, engramerr.HasCode(err, engramerr.CodeMemoryLaneClosed))
	assert.Zero(t, pool.Len())
}

func TestLanePool_EvictsIdleLanes(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- pool.Do(context.Background(), "s1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.Equal(t, 1, pool.Len())

	close(release)
	require.NoError(t, <-errc)
	assert.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, 5*time.Millisecond)

	// A later call for the same key opens a fresh lane.
	require.NoError(t, pool.Do(context.Background(), "s1", func(context.Context) error { return nil }))
	assert.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLanePool_AbandonedTaskKeepsLaneUntilDone(t *testing.T) {
	pool := memory.NewLanePool(nil)
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- pool.Do(ctx, "s1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// The task is still running, so the key stays serialized.
	assert.Equal(t, 1, pool.Len())
	close(release)
	assert.Eventually(t, func() bool { return pool.Len() == 0 }, time.Second, 5*time.Millisecond)
}
