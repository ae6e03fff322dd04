// Package background runs fire-and-forget work that must outlive the
// request that started it but not the process shutdown.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type Group struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

func New(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger}
}

// Go runs fn on a context detached from ctx's cancellation. Its error and
// any panic are logged under name.
func (g *Group) Go(ctx context.Context, name string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.ErrorContext(ctx, "background task panicked", "task", name, "panic", fmt.Sprint(r))
			}
		}()

		if err := fn(ctx); err != nil {
			g.logger.WarnContext(ctx, "background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every started task returns or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background tasks: %w", ctx.Err())
	}
}
