package groutine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/boks/internal/groutine"
	"github.com/stretchr/testify/assert"
)

func TestGo_NamesGoroutine(t *testing.T) {
	names := make(chan string, 1)
	groutine.Go(context.Background(), "worker-42", func(ctx context.Context) {
		names <- groutine.GetName(ctx)
	})
	assert.Equal(t, "worker-42", <-names, "name MUST be retrievable from context")
	assert.Empty(t, groutine.GetName(context.Background()))
	assert.NotZero(t, groutine.GetGID())
}

func TestGroup_StopCancelsAndWaits(t *testing.T) {
	// GOAL: Verify Stop cancels every member and waits for them
	//
	// TEST SCENARIO: start 3 blocking members → Stop → all observed cancellation before Stop returns

	g := groutine.NewGroup(context.Background())
	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go("member", func(ctx context.Context) {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			finished.Add(1)
		})
	}

	g.Stop()
	assert.Equal(t, int32(3), finished.Load(), "Stop MUST wait for all members")
	assert.Error(t, g.Context().Err(), "group context MUST be cancelled")
}
