// Package groutine starts named worker goroutines. Names are attached as pprof labels
// so adapter workers can be told apart in goroutine profiles.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const workerNameKey ctxKey = "worker_name"

// Go starts fn in a goroutine labelled with name. A nil parentCtx means
// context.Background().
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("worker", name)
	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, workerNameKey, name))
	})
}

// Name returns the worker name carried by ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(workerNameKey).(string)
	return s
}

// Group tracks named workers sharing one cancellable context.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup creates a group whose context is derived from parent.
func NewGroup(parent context.Context) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the group's context. It is done once Stop is called.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts a named worker within the group.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(g.ctx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Cancel cancels the group's context without waiting for the workers.
func (g *Group) Cancel() {
	g.cancel()
}

// Stop cancels the group's context and waits for every worker to return.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
}
