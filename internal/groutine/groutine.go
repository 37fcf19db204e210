// Package groutine starts goroutines labelled for pprof so long-lived
// workers (link monitors, event printers) are identifiable in profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled with name. The returned channel is
// closed once fn returns.
//
//	done := groutine.Go(ctx, "link-monitor", func(ctx context.Context) {
//	    // work
//	})
//	<-done
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	done := make(chan struct{})
	labels := pprof.Labels("goroutine_name", name)

	go func() {
		defer close(done)
		pprof.Do(parentCtx, labels, func(ctx context.Context) {
			fn(context.WithValue(ctx, goroutineNameKey, name))
		})
	}()
	return done
}

// Name retrieves the goroutine name set by Go from the context.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
