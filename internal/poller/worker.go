package poller

import "context"

// worker serializes the polls of one device.
type worker struct {
	address string
	device  Device
	shortC  chan struct{}
	longC   chan struct{}
	cancel  context.CancelFunc
}

func newWorker(address string, d Device) *worker {
	return &worker{
		address: address,
		device:  d,
		shortC:  make(chan struct{}, 1),
		longC:   make(chan struct{}, 1),
	}
}

// queue marks a poll pending. A poll already pending absorbs it.
func (w *worker) queue(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (w *worker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// run polls until ctx ends. A pending short poll runs before a pending
// long one so units and online state are current when sensors are read.
// A long poll that was already waiting when a short poll started runs right
// after it, so short polls slower than their period cannot starve it.
func (w *worker) run(ctx context.Context, s *Scheduler) {
	longWaiting := false
	for {
		if ctx.Err() != nil {
			return
		}
		if longWaiting {
			longWaiting = false
			select {
			case <-w.longC:
				s.pollLong(ctx, w)
				continue
			default:
			}
		}

		select {
		case <-w.shortC:
			longWaiting = w.runShort(ctx, s)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-w.shortC:
			longWaiting = w.runShort(ctx, s)
		case <-w.longC:
			s.pollLong(ctx, w)
		}
	}
}

// runShort polls state and reports whether a long poll was queued before it.
func (w *worker) runShort(ctx context.Context, s *Scheduler) bool {
	waiting := len(w.longC) > 0
	s.pollShort(ctx, w)
	return waiting
}
