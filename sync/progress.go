package sync

import (
	"context"
	"math/rand"
	"time"

	"github.com/chainwallet/syncer/log"
)

// DefaultTick is the ProgressLoop's poll interval (§4.5, §9 Open Question 2:
// kept at the spec's own "first cut" cadence rather than made event-driven,
// since WalletStore.Synchronize is the only address-discovery signal and is
// inherently poll-shaped).
const DefaultTick = 100 * time.Millisecond

// ProgressLoop is the Synchronizer's "main" driver (§4.5): periodically
// polls the wallet to generate new addresses, computes up-to-date state,
// and emits wallet_updated.
type ProgressLoop struct {
	store      WalletStore
	reconciler *Reconciler
	txFetcher  *TxFetcher
	events     EventBus
	tick       time.Duration
	log        log.Logger
}

// NewProgressLoop wires a ProgressLoop. tick <= 0 selects DefaultTick.
func NewProgressLoop(store WalletStore, reconciler *Reconciler, txFetcher *TxFetcher, events EventBus, tick time.Duration) *ProgressLoop {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &ProgressLoop{
		store:      store,
		reconciler: reconciler,
		txFetcher:  txFetcher,
		events:     events,
		tick:       tick,
		log:        log.NewModuleLogger(log.Sync),
	}
}

// Run implements MainLoopFunc.
func (p *ProgressLoop) Run(ctx context.Context, e *Engine) error {
	p.store.SetUpToDate(false)

	if err := p.healDanglingHistories(ctx); err != nil {
		return err
	}
	p.subscribeKnownAddresses(e)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.tickOnce(ctx, e); err != nil {
				return err
			}
		}
	}
}

// healDanglingHistories is the startup healing pass (§4.5): for every
// address that already has history rows, request whatever transactions are
// still missing, tolerating server not-found (old pruned data) but never
// tolerating a txid mismatch — that is still ErrSynchronizerFailure.
func (p *ProgressLoop) healDanglingHistories(ctx context.Context) error {
	addrs, err := p.store.GetHistory()
	if err != nil {
		p.log.Error("failed to enumerate addresses with stored history", "err", err)
		return nil
	}
	for _, addr := range addrs {
		hist, err := p.store.GetAddrHistory(addr)
		if err != nil {
			p.log.Error("failed to read stored history", "addr", addr, "err", err)
			continue
		}
		if err := p.txFetcher.RequestMissingTxs(ctx, hist, true); err != nil {
			return err
		}
	}
	return nil
}

// subscribeKnownAddresses enumerates the store's addresses in randomly
// shuffled order and feeds each to Add, so a malicious server cannot infer
// address-group correlations from subscription order (§4.5).
func (p *ProgressLoop) subscribeKnownAddresses(e *Engine) {
	addrs, err := p.store.GetAddresses()
	if err != nil {
		p.log.Error("failed to enumerate wallet addresses", "err", err)
		return
	}
	shuffled := make([]string, len(addrs))
	copy(shuffled, addrs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, addr := range shuffled {
		if err := e.Add(addr); err != nil {
			p.log.Warn("failed to subscribe known address", "addr", addr, "err", err)
		}
	}
}

// tickOnce is one steady-state tick (§4.5 steps 1-3): synchronize the store
// off-loop, then report up-to-date transitions.
func (p *ProgressLoop) tickOnce(ctx context.Context, e *Engine) error {
	syncDone := make(chan error, 1)
	go func() { syncDone <- p.store.Synchronize() }()

	select {
	case err := <-syncDone:
		if err != nil {
			p.log.Error("store synchronize failed", "err", err)
		}
	case <-ctx.Done():
		return nil
	}

	upToDate := e.PendingAddrs() == 0 && p.reconciler.Pending() == 0 && p.txFetcher.Pending() == 0
	prev := p.store.IsUpToDate()
	tookNotifications := e.HasProcessedNotifications()

	if upToDate != prev || (upToDate && tookNotifications) {
		if upToDate {
			e.ResetCounters()
		}
		p.store.SetUpToDate(upToDate)
		p.events.WalletUpdated(p.store)
	}
	if upToDate {
		e.ClearProcessedNotifications()
	}
	return nil
}
