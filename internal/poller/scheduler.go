package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Cycle names used in logs and metrics.
const (
	CycleShort = "short"
	CycleLong  = "long"
)

var (
	ErrAlreadyRunning = errors.New("poller: already running")
	ErrInvalidPeriod  = errors.New("poller: poll periods must be positive")
)

// Device is what a worker polls. *venstar.Client satisfies it.
type Device interface {
	FetchState(ctx context.Context) (venstar.State, error)
	FetchSensorsAndAlerts(ctx context.Context) (venstar.Extended, error)
}

// Sink receives poll results. Calls for one address are never concurrent.
type Sink interface {
	Short(ctx context.Context, address string, st venstar.State, err error)
	Long(ctx context.Context, address string, ext venstar.Extended, err error)
}

// Observer receives poll timings.
type Observer interface {
	ObservePoll(cycle string, took time.Duration, err error)
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Scheduler owns the tickers and device workers.
//
// Thread Safety: All methods are safe for concurrent use.
type Scheduler struct {
	shortEvery time.Duration
	longEvery  time.Duration
	sink       Sink
	clock      Clock
	observer   Observer
	logger     Logger

	mu      sync.Mutex
	workers map[string]*worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver sets the poll timing hook.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler with the given cycle periods.
func New(shortEvery, longEvery time.Duration, sink Sink, opts ...Option) (*Scheduler, error) {
	if shortEvery <= 0 || longEvery <= 0 {
		return nil, ErrInvalidPeriod
	}
	s := &Scheduler{
		shortEvery: shortEvery,
		longEvery:  longEvery,
		sink:       sink,
		clock:      RealClock{},
		logger:     noopLogger{},
		workers:    make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the tickers and any workers added so far.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, w := range s.workers {
		s.startWorkerLocked(w)
	}

	shortT := s.clock.NewTicker(s.shortEvery)
	longT := s.clock.NewTicker(s.longEvery)
	s.wg.Add(2) //nolint:mnd // one goroutine per ticker
	go s.runTicker(shortT, CycleShort)
	go s.runTicker(longT, CycleLong)

	s.logger.Info("poll scheduler started", "short", s.shortEvery.String(), "long", s.longEvery.String(), "devices", len(s.workers))
	return nil
}

// Stop halts tickers and workers and waits for in-flight polls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("poll scheduler stopped")
}

// Add registers a device. Adding an existing address replaces its device.
func (s *Scheduler) Add(address string, d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.workers[address]; ok {
		old.stop()
	}
	w := newWorker(address, d)
	s.workers[address] = w
	if s.running {
		s.startWorkerLocked(w)
	}
}

// Remove stops polling a device.
func (s *Scheduler) Remove(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[address]; ok {
		w.stop()
		delete(s.workers, address)
	}
}

// Trigger queues an immediate short and/or long poll of one device.
func (s *Scheduler) Trigger(address string, short, long bool) {
	s.mu.Lock()
	w, ok := s.workers[address]
	s.mu.Unlock()
	if !ok {
		return
	}
	if short {
		w.queue(w.shortC)
	}
	if long {
		w.queue(w.longC)
	}
}

// TriggerAll queues polls on every device.
func (s *Scheduler) TriggerAll(short, long bool) {
	for _, w := range s.snapshot() {
		if short {
			w.queue(w.shortC)
		}
		if long {
			w.queue(w.longC)
		}
	}
}

func (s *Scheduler) snapshot() []*worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out
}

func (s *Scheduler) runTicker(t Ticker, cycle string) {
	defer s.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C():
			s.TriggerAll(cycle == CycleShort, cycle == CycleLong)
		}
	}
}

func (s *Scheduler) startWorkerLocked(w *worker) {
	ctx, cancel := context.WithCancel(s.ctx)
	w.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(ctx, s)
	}()
}

func (s *Scheduler) pollShort(ctx context.Context, w *worker) {
	start := s.clock.Now()
	st, err := w.device.FetchState(ctx)
	if ctx.Err() != nil {
		return
	}
	s.observe(CycleShort, s.clock.Now().Sub(start), err)
	s.sink.Short(ctx, w.address, st, err)
}

func (s *Scheduler) pollLong(ctx context.Context, w *worker) {
	start := s.clock.Now()
	ext, err := w.device.FetchSensorsAndAlerts(ctx)
	if ctx.Err() != nil {
		return
	}
	s.observe(CycleLong, s.clock.Now().Sub(start), err)
	s.sink.Long(ctx, w.address, ext, err)
}

func (s *Scheduler) observe(cycle string, took time.Duration, err error) {
	if s.observer != nil {
		s.observer.ObservePoll(cycle, took, err)
	}
	if err != nil {
		s.logger.Debug("poll failed", "cycle", cycle, "error", err)
	}
}
