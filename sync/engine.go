package sync

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chainwallet/syncer/internal/metrics"
	"github.com/chainwallet/syncer/log"
)

// OnStatusFunc handles one (addr, status) notification. It is run as a
// child task of the engine's task group (§4.2): a non-nil error aborts the
// whole engine, so implementations must only return an error for a kind
// that is meant to propagate (Reconciler.OnStatus returns whatever
// TxFetcher.RequestMissingTxs returns: ErrSynchronizerFailure, a
// TransientFetchFailure or a parse error) and otherwise handle everything
// else locally.
type OnStatusFunc func(ctx context.Context, addr string, status AddressStatus) error

// MainLoopFunc is the subclass-supplied driver (§4.2 "main"): the
// Synchronizer's ProgressLoop or the Notifier's re-add-on-startup loop.
type MainLoopFunc func(ctx context.Context, e *Engine) error

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithAddQueueSize bounds the add-queue instead of leaving it unbounded
// (§5 "Backpressure" permits either).
func WithAddQueueSize(n int) Option {
	return func(e *Engine) { e.addQueueSize = n }
}

// WithStatusQueueSize bounds the status-push queue.
func WithStatusQueueSize(n int) Option {
	return func(e *Engine) { e.statusQueueSize = n }
}

// WithLogger overrides the module logger (defaults to log.Sync).
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the shared SubscriptionEngine (§4.2). It owns the set of
// subscribed addresses, dispatches subscribe requests, funnels status
// notifications to onStatus, and tracks request counters. The source's
// single-threaded cooperative loop is re-expressed here as a mutex guarding
// the handful of maps/counters that real goroutines (one per in-flight
// subscribe, one per status dispatch) touch concurrently; Add is the
// "thread-safe submit primitive" §5 requires.
type Engine struct {
	iface        Interface
	validate     AddressValidator
	scripthashOf ScripthashFn
	onStatus     OnStatusFunc
	log          log.Logger

	addQueueSize    int
	statusQueueSize int

	addCh  chan string
	pushCh chan StatusPush // fed by subscribeOne's initial status and by NotifyStatus

	mu                sync.Mutex
	requestedAddrs    map[string]struct{}
	scripthashToAddr  map[Scripthash]string
	processedSomeNote bool

	sent     int64
	answered int64

	sentCounter     metrics.Counter
	answeredCounter metrics.Counter
}

// NewEngine constructs an Engine. onStatus is invoked once per delivered
// status, in arrival order per address (handled by the single handleStatus
// task, §5 "Ordering guarantees").
func NewEngine(iface Interface, validate AddressValidator, scripthashOf ScripthashFn, onStatus OnStatusFunc, opts ...Option) *Engine {
	e := &Engine{
		iface:            iface,
		validate:         validate,
		scripthashOf:     scripthashOf,
		onStatus:         onStatus,
		log:              log.NewModuleLogger(log.Sync),
		addQueueSize:     4096,
		statusQueueSize:  4096,
		requestedAddrs:   make(map[string]struct{}),
		scripthashToAddr: make(map[Scripthash]string),
		sentCounter:      metrics.NewRegisteredCounter("sync/engine/requestsSent", nil),
		answeredCounter:  metrics.NewRegisteredCounter("sync/engine/requestsAnswered", nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.addCh = make(chan string, e.addQueueSize)
	e.pushCh = make(chan StatusPush, e.statusQueueSize)
	return e
}

// Add is the thread-safe entry point (§4.2). If addr fails validation it
// fails synchronously with ErrInvalidAddress without touching engine state.
// Re-adding an already-requested address is a no-op.
func (e *Engine) Add(addr string) error {
	if !e.validate(addr) {
		return ErrInvalidAddress
	}
	e.mu.Lock()
	if _, ok := e.requestedAddrs[addr]; ok {
		e.mu.Unlock()
		return nil
	}
	e.requestedAddrs[addr] = struct{}{}
	e.mu.Unlock()

	select {
	case e.addCh <- addr:
	default:
		// Queue momentarily full: fall back to a blocking send off this
		// goroutine so Add never silently drops an address the caller
		// believes is now tracked in requestedAddrs.
		go func() { e.addCh <- addr }()
	}
	return nil
}

// NotifyStatus delivers an out-of-band status push from the transport layer
// (an unsolicited server notification arriving after the initial subscribe
// response) to handleStatus, exactly as if it had come from subscribeOne
// itself. transport.Client calls this once per pushed notification.
func (e *Engine) NotifyStatus(sh Scripthash, status AddressStatus) {
	push := StatusPush{Scripthash: sh, Status: status}
	select {
	case e.pushCh <- push:
	default:
		go func() { e.pushCh <- push }()
	}
}

// Counters returns (requests_sent, requests_answered).
func (e *Engine) Counters() (sent, answered int64) {
	return atomic.LoadInt64(&e.sent), atomic.LoadInt64(&e.answered)
}

// ResetCounters zeroes both counters; called when the Synchronizer reports
// fully caught up.
func (e *Engine) ResetCounters() {
	atomic.StoreInt64(&e.sent, 0)
	atomic.StoreInt64(&e.answered, 0)
}

// PendingAddrs is the size of requestedAddrs (invariant 1, §8).
func (e *Engine) PendingAddrs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requestedAddrs)
}

// HasProcessedNotifications peeks the processedSomeNotifications flag
// without clearing it (§4.5, §9 Open Question 3: set at dispatch time in
// handleStatus, cleared only once the caller observes up-to-date).
func (e *Engine) HasProcessedNotifications() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processedSomeNote
}

// ClearProcessedNotifications clears the flag. The ProgressLoop calls this
// only when it has just observed UpToDate() == true, per §9 Open Question 3.
func (e *Engine) ClearProcessedNotifications() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processedSomeNote = false
}

// Run drives the engine's task group: send_subscriptions, handle_status, and
// the caller-supplied main driver, all under one errgroup so that any
// task's error cancels the rest (§4.2 Termination). On return — for any
// reason — the session's status channel is unsubscribed exactly once.
func (e *Engine) Run(ctx context.Context, main MainLoopFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sendSubscriptions(ctx, g) })
	g.Go(func() error { return e.handleStatus(ctx, g) })
	g.Go(func() error { return main(ctx, e) })

	err := g.Wait()

	unsubCtx, unsubCancel := context.WithCancel(context.Background())
	if uerr := e.iface.Unsubscribe(unsubCtx); uerr != nil {
		e.log.Warn("failed to unsubscribe status channel on shutdown", "err", uerr)
	}
	unsubCancel()

	if err == context.Canceled {
		return nil
	}
	return err
}

// sendSubscriptions is task 1 (§4.2): pops addresses off add_queue, computes
// scripthashes, and issues subscribes, one child task per address so a slow
// subscribe never blocks the queue.
func (e *Engine) sendSubscriptions(ctx context.Context, g *errgroup.Group) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case addr := <-e.addCh:
			sh := e.scripthashOf(addr)

			e.mu.Lock()
			e.scripthashToAddr[sh] = addr
			e.mu.Unlock()

			atomic.AddInt64(&e.sent, 1)
			e.sentCounter.Inc(1)

			addr, sh := addr, sh
			g.Go(func() error { return e.subscribeOne(ctx, addr, sh) })
		}
	}
}

func (e *Engine) subscribeOne(ctx context.Context, addr string, sh Scripthash) error {
	status, err := e.iface.SubscribeScripthash(ctx, sh)

	atomic.AddInt64(&e.answered, 1)
	e.answeredCounter.Inc(1)

	e.mu.Lock()
	delete(e.requestedAddrs, addr)
	e.mu.Unlock()

	if err != nil {
		if isHistoryTooLarge(err) {
			return ErrGracefulDisconnect
		}
		e.log.Error("subscribe failed", "addr", addr, "err", err)
		return nil
	}

	select {
	case e.pushCh <- StatusPush{Scripthash: sh, Status: status}:
	case <-ctx.Done():
	}
	return nil
}

func isHistoryTooLarge(err error) bool {
	return err != nil && strings.Contains(err.Error(), "history too large")
}

// handleStatus is task 2 (§4.2): pops (scripthash, status) off status_queue,
// resolves to an address, and spawns onStatus as a child task.
func (e *Engine) handleStatus(ctx context.Context, g *errgroup.Group) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case push := <-e.pushCh:
			e.mu.Lock()
			addr, ok := e.scripthashToAddr[push.Scripthash]
			if ok {
				e.processedSomeNote = true
			}
			e.mu.Unlock()
			if !ok {
				e.log.Warn("status push for unknown scripthash", "scripthash", push.Scripthash)
				continue
			}

			addr, status := addr, push.Status
			g.Go(func() error { return e.onStatus(ctx, addr, status) })
		}
	}
}
