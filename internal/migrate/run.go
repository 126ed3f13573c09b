package migrate

import "context"

// Run is a migration executing in the background.
type Run struct {
	progress chan Progress
	done     chan struct{}
	result   Result
}

// Start runs a migration in its own goroutine.
func (o *Orchestrator) Start(ctx context.Context) *Run {
	r := &Run{
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer close(r.progress)
		r.result = o.Run(ctx, r.publish)
	}()
	return r
}

// publish keeps only the latest snapshot so a slow or absent reader never
// holds up the run.
func (r *Run) publish(p Progress) {
	select {
	case r.progress <- p:
		return
	default:
	}
	select {
	case <-r.progress:
	default:
	}
	r.progress <- p
}

// Progress streams snapshots and is closed when the run ends. Readers may
// stop receiving at any time.
func (r *Run) Progress() <-chan Progress {
	return r.progress
}

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends and returns its result.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}
