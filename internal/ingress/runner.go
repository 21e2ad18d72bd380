package ingress

import "context"

// Task is a long-running loop that stops when its context is cancelled.
type Task interface {
	Run(ctx context.Context) error
}

// Runner runs an ingress and its response dispatcher as one unit.
type Runner struct {
	Ingress    Task
	Dispatcher Task
}

// Run starts both tasks. The first to return cancels the other; Run waits
// for both and returns the first one's error.
func (r Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	for _, t := range []Task{r.Ingress, r.Dispatcher} {
		go func() { errc <- t.Run(ctx) }()
	}
	err := <-errc
	cancel()
	<-errc
	logger.Debug("ingress runner stopped", "err", err)
	return err
}
