package bus

import "golang.org/x/sync/errgroup"

// dispatcher runs deliveries on at most limit goroutines. With a limit of one
// or less every delivery runs inline, in arrival order.
type dispatcher struct {
	limit int
	g     errgroup.Group
}

func newDispatcher(limit int) *dispatcher {
	d := &dispatcher{limit: limit}
	if limit > 1 {
		d.g.SetLimit(limit)
	}
	return d
}

// Go blocks while limit deliveries are already running.
func (d *dispatcher) Go(fn func()) {
	if d.limit <= 1 {
		fn()
		return
	}
	d.g.Go(func() error {
		fn()
		return nil
	})
}

func (d *dispatcher) Wait() { _ = d.g.Wait() }
