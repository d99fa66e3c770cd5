package sync

import (
	"context"
	"sync"

	"github.com/chainwallet/syncer/log"
)

// Reconciler is the Synchronizer's HistoryReconciler (§4.3): on a status
// change it fetches history, validates it, hands it to the store, and
// enqueues missing transactions.
type Reconciler struct {
	iface        Interface
	store        WalletStore
	scripthashOf ScripthashFn
	txFetcher    *TxFetcher
	events       EventBus
	log          log.Logger

	mu                 sync.Mutex
	requestedHistories map[requestedHistoryKey]struct{}
}

// NewReconciler wires a Reconciler. The returned OnStatus method has the
// OnStatusFunc signature and is what a Synchronizer passes to NewEngine.
func NewReconciler(iface Interface, store WalletStore, scripthashOf ScripthashFn, txFetcher *TxFetcher, events EventBus) *Reconciler {
	return &Reconciler{
		iface:              iface,
		store:              store,
		scripthashOf:       scripthashOf,
		txFetcher:          txFetcher,
		events:             events,
		log:                log.NewModuleLogger(log.Sync),
		requestedHistories: make(map[requestedHistoryKey]struct{}),
	}
}

// Pending is the size of requestedHistories (used by the ProgressLoop's
// up-to-date computation).
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requestedHistories)
}

// OnStatus implements OnStatusFunc (§4.3). Its steps:
//  1. compare local vs server status, no-op if equal (steady state)
//  2. dedup on (addr, status)
//  3. fetch history from the server
//  4. validate (duplicate txids / status hash mismatch => drop, log, no
//     store mutation)
//  5. commit to the store and request missing transactions
//  6. always clear the dedup entry, on every exit path
func (r *Reconciler) OnStatus(ctx context.Context, addr string, status AddressStatus) error {
	local, err := r.store.GetAddrHistory(addr)
	if err != nil {
		r.log.Error("failed to read local history", "addr", addr, "err", err)
		return nil
	}
	localStatus := HashHistory(local)
	if StatusEqual(localStatus, status) {
		return nil
	}

	key := historyKey(addr, status)
	r.mu.Lock()
	if _, inFlight := r.requestedHistories[key]; inFlight {
		r.mu.Unlock()
		return nil
	}
	r.requestedHistories[key] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.requestedHistories, key)
		r.mu.Unlock()
	}()

	sh := r.scripthashOf(addr)
	hist, err := r.iface.GetHistoryForScripthash(ctx, sh)
	if err != nil {
		r.log.Error("failed to fetch history", "addr", addr, "err", err)
		return nil
	}

	if dup := firstDuplicateTxID(hist); dup != nil {
		r.log.Warn("server reported duplicate txid in history, dropping", "addr", addr, "txid", dup.String())
		return nil
	}

	computed := HashHistory(hist)
	if !StatusEqual(computed, status) {
		r.log.Warn("status hash mismatch, dropping history", "addr", addr, "reported", StatusHex(status), "computed", StatusHex(computed))
		return nil
	}

	if err := r.store.ReceiveHistoryCallback(addr, hist); err != nil {
		r.log.Error("failed to commit history to store", "addr", addr, "err", err)
		return nil
	}

	return r.txFetcher.RequestMissingTxs(ctx, hist, false)
}

func firstDuplicateTxID(hist []HistoryEntry) *TxID {
	seen := make(map[TxID]struct{}, len(hist))
	for _, e := range hist {
		if _, ok := seen[e.TxID]; ok {
			id := e.TxID
			return &id
		}
		seen[e.TxID] = struct{}{}
	}
	return nil
}
