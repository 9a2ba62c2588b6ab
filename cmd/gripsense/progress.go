package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/gripsense/internal/groutine"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps one status line updated with the current phase and the
// remaining seconds.
//
// Usage:
//
//	p := NewCountdownProgressPrinter(w, "Scanning", "discovering", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use; Stop is safe to call more than once.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	phase    atomic.Value // string
	duration time.Duration

	writeMu sync.Mutex
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	stop    sync.Once
}

// NewCountdownProgressPrinter creates a printer that counts down from d.
func NewCountdownProgressPrinter(w io.Writer, prefix, phase string, d time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{w: w, prefix: prefix, duration: d}
	p.phase.Store(phase)
	return p
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins updating the status line. It panics if called twice.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	start := time.Now()
	p.print(0)

	groutine.Go(ctx, "progress", func(ctx context.Context) {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				remaining := p.duration - time.Since(start)
				if remaining < 0 {
					remaining = 0
				}
				// round to the nearest second
				p.print(int(remaining.Seconds() + 0.5))
			}
		}
	})
}

// SetPhase replaces the phase shown in parentheses.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Println clears the status line, writes a line and lets the next tick redraw it.
func (p *ProgressPrinter) Println(a ...any) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	fmt.Fprint(p.w, clearLineSequence)
	fmt.Fprintln(p.w, a...)
}

func (p *ProgressPrinter) print(seconds int) {
	phase := p.phase.Load().(string)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Stop ends the updates and clears the status line.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() {
		return
	}
	p.stop.Do(func() {
		p.cancel()
		<-p.done

		p.writeMu.Lock()
		fmt.Fprint(p.w, clearLineSequence)
		p.writeMu.Unlock()
	})
}
