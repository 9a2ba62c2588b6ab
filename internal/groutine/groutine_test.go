package groutine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/gripsense/internal/groutine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_CarriesName(t *testing.T) {
	got := make(chan string, 1)
	groutine.Go(context.Background(), "scan", func(ctx context.Context) {
		got <- groutine.Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "scan", name)
	case <-time.After(time.Second):
		t.Fatal("worker did not run")
	}
	assert.Equal(t, "", groutine.Name(context.Background()))
}

func TestGroup_StopCancelsAndWaits(t *testing.T) {
	g := groutine.NewGroup(context.Background())
	var finished atomic.Int32

	for _, name := range []string{"a", "b", "c"} {
		g.Go(name, func(ctx context.Context) {
			<-ctx.Done()
			finished.Add(1)
		})
	}

	g.Stop()
	require.Equal(t, int32(3), finished.Load(), "Stop MUST wait for every worker")
	assert.Error(t, g.Context().Err())
}

func TestGroup_CancelDoesNotWait(t *testing.T) {
	g := groutine.NewGroup(context.Background())
	release := make(chan struct{})
	g.Go("blocked", func(context.Context) { <-release })

	g.Cancel()
	assert.Error(t, g.Context().Err(), "Cancel MUST cancel the context")

	close(release)
	g.Stop()
}
