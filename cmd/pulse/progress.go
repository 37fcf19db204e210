package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/srg/pulse/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter shows "<prefix> (<phase> Ns)" on a single terminal line
// while a blocking step runs.
//
// A progressPrinter is single-use: Start once, Stop at least once.
type progressPrinter struct {
	w      io.Writer
	prefix string
	phase  string

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      <-chan struct{}
}

func newProgressPrinter(w io.Writer, prefix, phase string) *progressPrinter {
	return &progressPrinter{w: w, prefix: prefix, phase: phase}
}

// Start begins redrawing the line in a background goroutine
func (p *progressPrinter) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel

		start := time.Now()
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, p.phase)

		p.done = groutine.Go(ctx, "progress-printer", func(ctx context.Context) {
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if s := int(time.Since(start).Seconds()); s > 0 {
						fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, p.phase, s)
					}
				}
			}
		})
	})
}

// Stop terminates the goroutine and clears the line. Safe to call many times.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			return
		}
		p.cancel()
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}
