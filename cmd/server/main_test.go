package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestAwaitExitOnServeFailure(t *testing.T) {
	g, serveCtx := errgroup.WithContext(context.Background())
	g.Go(func() error { return errors.New("listener closed") })

	stopped := false
	done := make(chan int, 1)
	go func() {
		done <- awaitExit(serveCtx, make(chan int), func() { stopped = true })
	}()

	select {
	case code := <-done:
		assert.Equal(t, 1, code)
		assert.True(t, stopped)
	case <-time.After(2 * time.Second):
		t.Fatal("serve failure did not end the wait")
	}
	assert.Error(t, g.Wait())
}

func TestAwaitExitUsesShutdownCode(t *testing.T) {
	wait := make(chan int, 1)
	wait <- 0

	stopped := false
	code := awaitExit(context.Background(), wait, func() { stopped = true })

	assert.Zero(t, code)
	assert.False(t, stopped)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 3*time.Second, remaining(context.Background(), 3*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	got := remaining(ctx, time.Second)
	assert.Greater(t, got, 50*time.Second)
	assert.LessOrEqual(t, got, time.Minute)
}
