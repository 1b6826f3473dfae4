package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDiscarded is reported to waiters of a refresh whose result was dropped
// because the collection was forgotten while it was in flight.
var ErrDiscarded = errors.New("refresh result discarded")

// FetchFunc queries one collection. On success it returns apply, which hands
// the result to the optimistic store; the scheduler calls apply only if the
// collection is still wanted when the query completes.
type FetchFunc func(ctx context.Context, collection string) (apply func(), err error)

type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// Status describes one collection's refresh state.
type Status struct {
	State       State
	LastErr     error
	LastAttempt time.Time
	LastSuccess time.Time
}

// Flight is a handle on one (possibly shared) refresh.
type Flight struct {
	done chan struct{}
	err  error
}

// Done is closed when the refresh has finished.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Err returns the refresh error once Done is closed.
func (f *Flight) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the refresh finishes or ctx ends. Leaving early does not
// stop the refresh.
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

// Config configures a Scheduler.
type Config struct {
	Fetch   FetchFunc
	Timeout time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

// Scheduler runs at most one refresh per collection at a time. Triggers that
// arrive while a refresh is running join it instead of querying again.
type Scheduler struct {
	fetch   FetchFunc
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	flights map[string]*Flight
	status  map[string]Status
	gens    map[string]uint64
}

// New constructs a Scheduler. A zero timeout means 30s per refresh.
func New(cfg Config) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		fetch:   cfg.Fetch,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		logger:  cfg.Logger,
		baseCtx: ctx,
		cancel:  cancel,
		flights: make(map[string]*Flight),
		status:  make(map[string]Status),
		gens:    make(map[string]uint64),
	}
}

// TriggerRefresh starts a refresh of collection, or joins the one in flight.
func (s *Scheduler) TriggerRefresh(collection string) *Flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flights[collection]; ok {
		return f
	}
	f := &Flight{done: make(chan struct{})}
	if s.baseCtx.Err() != nil {
		f.err = s.baseCtx.Err()
		close(f.done)
		return f
	}
	s.flights[collection] = f
	st := s.status[collection]
	st.State = StateFetching
	st.LastAttempt = s.now()
	s.status[collection] = st
	gen := s.gens[collection]

	s.wg.Add(1)
	go s.run(collection, gen, f)
	return f
}

func (s *Scheduler) run(collection string, gen uint64, f *Flight) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	apply, err := s.fetch(ctx, collection)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(f.done)
	if s.flights[collection] == f {
		delete(s.flights, collection)
	}
	if s.gens[collection] != gen {
		s.logger.Debug("discarding refresh for forgotten collection", "collection", collection)
		f.err = ErrDiscarded
		return
	}

	st := s.status[collection]
	st.State = StateIdle
	if err != nil {
		st.LastErr = err
		s.status[collection] = st
		f.err = err
		s.logger.Warn("refresh failed, keeping last snapshot", "collection", collection, "err", err)
		return
	}
	if apply != nil {
		apply()
	}
	st.LastErr = nil
	st.LastSuccess = s.now()
	s.status[collection] = st
}

// Status returns the refresh state of collection.
func (s *Scheduler) Status(collection string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[collection]
	if !ok {
		return Status{State: StateIdle}
	}
	return st
}

// Forget drops collection's state. A refresh still running for it completes
// without applying its result.
func (s *Scheduler) Forget(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[collection]++
	delete(s.flights, collection)
	delete(s.status, collection)
}

// Close stops accepting refreshes, cancels running ones and waits for them.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}
