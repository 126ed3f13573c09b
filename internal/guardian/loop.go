package guardian

import (
	"context"
	"time"

	"github.com/nikbrunner/gmark/internal/logger"
)

// Start runs an optimization immediately, then on every interval tick and
// after every Trigger, until Stop or ctx cancellation.
func (g *Guardian) Start(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		g.run(ctx)

		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.run(ctx)
			case <-g.trigger:
				g.run(ctx)
			case <-g.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Trigger requests an optimization check without blocking. Requests made
// while one is already queued are coalesced.
func (g *Guardian) Trigger() {
	select {
	case g.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the background loop and waits for a running pass to finish.
func (g *Guardian) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

func (g *Guardian) run(ctx context.Context) {
	report, err := g.OptimizeIfNeeded(ctx)
	if err != nil {
		if ctx.Err() == nil {
			g.log.Error("storage optimization failed", logger.Error(err))
		}
		return
	}
	if !report.Ran {
		g.log.Debug("storage within budget",
			logger.Float64("percentage", report.Status.Percentage))
	}
}
