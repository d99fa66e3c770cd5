package notify

import (
	"context"
	gosync "sync"
	"time"

	"github.com/chainwallet/syncer/log"
	"github.com/chainwallet/syncer/sync"
)

// Dispatcher is the Notifier's WebhookDispatcher (§4.6): it implements
// sync.OnStatusFunc and sync.MainLoopFunc so it can drive the same
// sync.Engine the Synchronizer uses, but instead of reconciling history it
// fans a status change out to every URL currently watching that address.
type Dispatcher struct {
	engine *sync.Engine
	store  WatchStore
	poster Poster
	log    log.Logger

	mu   gosync.Mutex
	urls map[string][]string // addr -> subscriber URLs, insertion order preserved
}

// NewDispatcher wires a Dispatcher and its backing sync.Engine. validate and
// scripthashOf are the same injected primitives the Synchronizer uses
// (§4.6: the Notifier reuses the subscription engine, not its own copy).
func NewDispatcher(iface sync.Interface, validate sync.AddressValidator, scripthashOf sync.ScripthashFn, store WatchStore, poster Poster, opts ...sync.Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		poster: poster,
		log:    log.NewModuleLogger(log.Notify),
		urls:   make(map[string][]string),
	}
	d.engine = sync.NewEngine(iface, validate, scripthashOf, d.OnStatus, opts...)
	return d
}

// NotifyStatus delivers an out-of-band status push from the transport
// layer. See sync.Engine.NotifyStatus.
func (d *Dispatcher) NotifyStatus(sh sync.Scripthash, status sync.AddressStatus) {
	d.engine.NotifyStatus(sh, status)
}

// Run drives the Dispatcher as a sync.MainLoopFunc: loads the persisted
// mapping, re-subscribes every watched address, then blocks until cancelled.
func (d *Dispatcher) Run(ctx context.Context, e *sync.Engine) error {
	mapping, err := d.store.Load()
	if err != nil {
		d.log.Error("failed to load webhook mapping", "err", err)
	} else {
		d.mu.Lock()
		for addr, urls := range mapping {
			d.urls[addr] = append([]string{}, urls...)
		}
		d.mu.Unlock()
		for addr := range mapping {
			if err := e.Add(addr); err != nil {
				d.log.Warn("failed to resubscribe watched address", "addr", addr, "err", err)
			}
		}
	}

	<-ctx.Done()
	return nil
}

// StartWatchingAddr registers url as a subscriber of addr's status changes,
// persists the mapping, and ensures addr is subscribed on the engine.
func (d *Dispatcher) StartWatchingAddr(addr, url string) error {
	d.mu.Lock()
	already := false
	for _, u := range d.urls[addr] {
		if u == url {
			already = true
			break
		}
	}
	if !already {
		d.urls[addr] = append(d.urls[addr], url)
	}
	d.mu.Unlock()

	if !already {
		if err := d.store.Save(addr, url); err != nil {
			d.log.Error("failed to persist watched address", "addr", addr, "err", err)
		}
	}
	return d.engine.Add(addr)
}

// StopWatchingAddr removes url from addr's subscriber list. Per §9 Open
// Question 1, this never unsubscribes addr from the underlying engine: the
// engine's bijection and the Notifier's URL list have independent
// lifetimes, so a lingering engine subscription with zero URLs is an
// accepted, bounded leak rather than a bug.
func (d *Dispatcher) StopWatchingAddr(addr, url string) error {
	d.mu.Lock()
	urls := d.urls[addr]
	kept := urls[:0:0]
	for _, u := range urls {
		if u != url {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		delete(d.urls, addr)
	} else {
		d.urls[addr] = kept
	}
	d.mu.Unlock()

	return d.store.Delete(addr, url)
}

// OnStatus implements sync.OnStatusFunc: it POSTs the webhook payload to
// every URL currently watching addr. A post failure is logged and
// swallowed (§7: WebhookPostFailure is non-fatal) so one dead endpoint
// never aborts the shared engine.
func (d *Dispatcher) OnStatus(ctx context.Context, addr string, status sync.AddressStatus) error {
	d.mu.Lock()
	urls := append([]string{}, d.urls[addr]...)
	d.mu.Unlock()

	for _, url := range urls {
		if err := d.poster.Post(ctx, url, addr, status); err != nil {
			d.log.Warn("webhook post failed", "addr", addr, "url", url, "err", err)
		}
	}
	return nil
}

// RunStandalone runs the engine NewDispatcher built for d, with d.Run as its
// main loop, until ctx is cancelled or the engine aborts.
func (d *Dispatcher) RunStandalone(ctx context.Context) error {
	return d.engine.Run(ctx, d.Run)
}

// PostTimeout bounds a single webhook POST (Poster implementations should
// honor it via their own client timeout or ctx deadline).
const PostTimeout = 10 * time.Second
