package sync

import (
	"context"
	"time"
)

// Synchronizer wires the shared SubscriptionEngine to the
// HistoryReconciler, TxFetcher and ProgressLoop (§2, §9: composition over
// the source's inheritance from a shared base).
type Synchronizer struct {
	engine     *Engine
	reconciler *Reconciler
	txFetcher  *TxFetcher
	progress   *ProgressLoop
}

// NewSynchronizer builds a Synchronizer. tick <= 0 selects
// ProgressLoop's DefaultTick.
func NewSynchronizer(
	iface Interface,
	store WalletStore,
	events EventBus,
	validate AddressValidator,
	scripthashOf ScripthashFn,
	parseTx TxParseFunc,
	tick time.Duration,
	opts ...Option,
) *Synchronizer {
	txFetcher := NewTxFetcher(iface, store, events, parseTx)
	reconciler := NewReconciler(iface, store, scripthashOf, txFetcher, events)
	progress := NewProgressLoop(store, reconciler, txFetcher, events, tick)
	engine := NewEngine(iface, validate, scripthashOf, reconciler.OnStatus, opts...)

	return &Synchronizer{
		engine:     engine,
		reconciler: reconciler,
		txFetcher:  txFetcher,
		progress:   progress,
	}
}

// Run blocks until ctx is cancelled or the engine aborts with an error
// (ErrGracefulDisconnect, ErrSynchronizerFailure, or a failed transaction
// fetch; see errors.go), any of which means the owner should construct a
// fresh Synchronizer and retry (§1, §7).
func (s *Synchronizer) Run(ctx context.Context) error {
	return s.engine.Run(ctx, s.progress.Run)
}

// NotifyStatus delivers an out-of-band status push from the transport layer
// for addresses already subscribed on the engine. See Engine.NotifyStatus.
func (s *Synchronizer) NotifyStatus(sh Scripthash, status AddressStatus) {
	s.engine.NotifyStatus(sh, status)
}

// Add subscribes an address, e.g. one freshly generated by wallet storage.
// The ProgressLoop reads the store's address list only once, at startup;
// its ticks call WalletStore.Synchronize but do not look for addresses
// added since, so an address added to the store after Run starts is
// subscribed only through Add.
func (s *Synchronizer) Add(addr string) error {
	return s.engine.Add(addr)
}

// Counters exposes the engine's request counters for progress reporting.
func (s *Synchronizer) Counters() (sent, answered int64) {
	return s.engine.Counters()
}

// UpToDate reports whether every in-flight set is currently empty
// (invariant 5, §8).
func (s *Synchronizer) UpToDate() bool {
	return s.engine.PendingAddrs() == 0 && s.reconciler.Pending() == 0 && s.txFetcher.Pending() == 0
}
