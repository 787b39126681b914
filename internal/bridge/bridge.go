// Package bridge runs work submitted from synchronous callers (HTTP handlers,
// cron triggers) on one long-lived asynchronous execution context.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"biteiq/internal/eventbus"
	rtsup "biteiq/internal/runtime/supervisor"
	logx "biteiq/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

type Bridge struct {
	mu       sync.Mutex
	cfg      Config
	log      logx.Logger
	bus      eventbus.Bus
	started  bool
	stopping bool
	stopped  bool

	q       chan *Submission
	stopCh  chan struct{}
	permits chan struct{}
	sup     *rtsup.Supervisor

	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  sync.WaitGroup
	running   atomic.Int64

	laneMu sync.Mutex
	lanes  map[string]*lane

	launches          atomic.Int32
	lastQueueFullWarn atomic.Int64
}

// lane holds submissions waiting behind a running one with the same key.
type lane struct {
	pending []*Submission
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Bridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bridge{
		cfg:   cfg.withDefaults(),
		log:   log.With(logx.String("comp", "bridge")),
		bus:   bus,
		lanes: map[string]*lane{},
	}
}

// Start launches the dispatcher. Repeated or concurrent calls start it once.
// Actions run on a context detached from ctx's cancellation; Stop ends them.
func (b *Bridge) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.stopping {
		return ErrStopped
	}
	if b.started {
		return nil
	}

	b.q = make(chan *Submission, b.cfg.QueueSize)
	b.stopCh = make(chan struct{})
	b.permits = make(chan struct{}, b.cfg.MaxInFlight)
	b.runCtx, b.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	b.sup = rtsup.New(context.WithoutCancel(ctx),
		rtsup.WithLogger(b.log),
		rtsup.WithCancelOnError(false),
	)
	stopCh, q := b.stopCh, b.q
	b.started = true
	b.launches.Add(1)

	b.sup.GoRestart("dispatch", func(c context.Context) error {
		b.dispatch(c, stopCh, q)
		select {
		case <-stopCh:
			return context.Canceled
		default:
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("dispatcher exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))

	b.log.Info("bridge started",
		logx.Int("queue", b.cfg.QueueSize),
		logx.Int("max_in_flight", b.cfg.MaxInFlight),
		logx.Duration("timeout", b.cfg.Timeout),
	)
	return nil
}

// Submit queues action without blocking and without running any of it on the
// caller's goroutine.
func (b *Bridge) Submit(name string, action Action, opts ...SubmitOption) (*Submission, error) {
	if action == nil {
		return nil, fmt.Errorf("bridge: nil action %q", name)
	}
	sub := &Submission{
		ID:         uuid.NewString(),
		Name:       name,
		enqueuedAt: time.Now(),
		action:     action,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.stopped:
		return nil, ErrStopped
	case b.stopping:
		return nil, ErrStopping
	case !b.started:
		return nil, ErrNotReady
	}
	if sub.timeout <= 0 {
		sub.timeout = b.cfg.Timeout
	}

	select {
	case b.q <- sub:
		return sub, nil
	default:
		eventbus.Publish(b.bus, eventbus.BridgeDropped, Result{ID: sub.ID, Name: name, Key: sub.Key, Err: ErrQueueFull})
		if b.shouldWarn(time.Now()) {
			b.log.Warn("submission rejected: queue full", logx.String("name", name), logx.Int("queue_cap", cap(b.q)))
		}
		return nil, ErrQueueFull
	}
}

// Pending reports queued plus running submissions.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	q := b.q
	b.mu.Unlock()
	return len(q) + int(b.running.Load())
}

// Stop stops accepting work, drops whatever is still queued, gives in-flight
// actions the grace period, then cancels them and waits until ctx is done.
func (b *Bridge) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	if !b.started || b.stopping || b.stopped {
		b.stopped = true
		b.mu.Unlock()
		return
	}
	b.stopping = true
	close(b.stopCh)
	sup, q, grace := b.sup, b.q, b.cfg.GracePeriod
	b.mu.Unlock()

	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn("dispatcher stop", logx.Err(err))
	}

	dropped := 0
	for drained := false; !drained; {
		select {
		case sub := <-q:
			b.drop(sub)
			dropped++
		default:
			drained = true
		}
	}

	idle := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(idle)
	}()

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-idle:
	case <-t.C:
		b.log.Warn("bridge grace period elapsed; canceling in-flight actions", logx.Int64("running", b.running.Load()))
		b.runCancel()
		select {
		case <-idle:
		case <-ctx.Done():
			b.log.Warn("bridge stop timed out", logx.Int64("running", b.running.Load()), logx.Err(ctx.Err()))
		}
	case <-ctx.Done():
		b.runCancel()
		b.log.Warn("bridge stop timed out", logx.Int64("running", b.running.Load()), logx.Err(ctx.Err()))
	}
	b.runCancel()

	b.mu.Lock()
	b.stopping = false
	b.stopped = true
	b.mu.Unlock()
	b.log.Info("bridge stopped", logx.Int("dropped", dropped))
}

func (b *Bridge) dispatch(ctx context.Context, stopCh <-chan struct{}, q <-chan *Submission) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case sub := <-q:
			if sub.Key != "" && b.joinLane(sub) {
				continue
			}
			if !b.acquire(ctx, stopCh) {
				b.drop(sub)
				if sub.Key != "" {
					b.dropLane(sub.Key)
				}
				return
			}
			b.inflight.Add(1)
			go b.run(sub, stopCh)
		}
	}
}

// joinLane appends sub behind a running submission with the same key.
// It returns false when sub opened a new lane and must be launched.
func (b *Bridge) joinLane(sub *Submission) bool {
	b.laneMu.Lock()
	defer b.laneMu.Unlock()
	if l, ok := b.lanes[sub.Key]; ok {
		l.pending = append(l.pending, sub)
		return true
	}
	b.lanes[sub.Key] = &lane{}
	return false
}

func (b *Bridge) nextInLane(key string) *Submission {
	b.laneMu.Lock()
	defer b.laneMu.Unlock()
	l, ok := b.lanes[key]
	if !ok {
		return nil
	}
	if len(l.pending) == 0 {
		delete(b.lanes, key)
		return nil
	}
	next := l.pending[0]
	l.pending = l.pending[1:]
	return next
}

func (b *Bridge) dropLane(key string) {
	b.laneMu.Lock()
	l := b.lanes[key]
	delete(b.lanes, key)
	b.laneMu.Unlock()
	if l == nil {
		return
	}
	for _, sub := range l.pending {
		b.drop(sub)
	}
}

// run executes sub and then drains its lane while holding one permit.
func (b *Bridge) run(sub *Submission, stopCh <-chan struct{}) {
	defer b.inflight.Done()
	defer func() { <-b.permits }()

	for sub != nil {
		b.exec(sub)
		if sub.Key == "" {
			return
		}
		select {
		case <-stopCh:
			b.dropLane(sub.Key)
			return
		default:
		}
		sub = b.nextInLane(sub.Key)
	}
}

func (b *Bridge) acquire(ctx context.Context, stopCh <-chan struct{}) bool {
	select {
	case b.permits <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	}
}

func (b *Bridge) exec(sub *Submission) {
	b.running.Add(1)
	defer b.running.Add(-1)

	start := time.Now()
	res := Result{ID: sub.ID, Name: sub.Name, Key: sub.Key, Queued: start.Sub(sub.enqueuedAt)}

	ctx, cancel := context.WithTimeout(b.runCtx, sub.timeout)
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("panic: %v", r)
				res.Panicked = true
				b.log.Error("submission panicked",
					logx.String("id", sub.ID),
					logx.String("name", sub.Name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
		}()
		res.Err = sub.action(ctx)
	}()
	cancel()
	res.Duration = time.Since(start)

	fields := []logx.Field{
		logx.String("id", sub.ID),
		logx.String("name", sub.Name),
		logx.Duration("queue_delay", res.Queued),
		logx.Duration("dur", res.Duration),
	}
	switch {
	case res.Err != nil:
		b.log.Warn("submission failed", append(fields, logx.Err(res.Err))...)
		eventbus.Publish(b.bus, eventbus.BridgeFailed, res)
	case res.Duration >= 750*time.Millisecond:
		b.log.Info("submission completed", fields...)
	default:
		b.log.Debug("submission completed", fields...)
	}
	b.finish(sub, res)
}

func (b *Bridge) drop(sub *Submission) {
	res := Result{ID: sub.ID, Name: sub.Name, Key: sub.Key, Queued: time.Since(sub.enqueuedAt), Err: ErrDropped}
	b.log.Warn("submission dropped", logx.String("id", sub.ID), logx.String("name", sub.Name))
	eventbus.Publish(b.bus, eventbus.BridgeDropped, res)
	b.finish(sub, res)
}

func (b *Bridge) finish(sub *Submission, res Result) {
	sub.once.Do(func() {
		sub.result = res
		if sub.onDone != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.log.Error("completion callback panicked", logx.String("id", sub.ID), logx.Any("panic", r))
					}
				}()
				sub.onDone(res)
			}()
		}
		close(sub.done)
	})
}

func (b *Bridge) shouldWarn(now time.Time) bool {
	prev := b.lastQueueFullWarn.Load()
	n := now.UnixNano()
	if prev != 0 && n-prev < int64(warnThrottleEvery) {
		return false
	}
	return b.lastQueueFullWarn.CompareAndSwap(prev, n)
}
