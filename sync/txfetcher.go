package sync

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chainwallet/syncer/internal/metrics"
	"github.com/chainwallet/syncer/log"
)

// TxFetcher is the Synchronizer's TxFetcher (§4.4): fetches raw
// transactions, verifies txid, hands them to the store, and emits
// new_transaction events.
type TxFetcher struct {
	iface    Interface
	store    WalletStore
	events   EventBus
	parseTx  TxParseFunc
	log      log.Logger

	mu          sync.Mutex
	requestedTx map[TxID]int64

	sentCounter     metrics.Counter
	answeredCounter metrics.Counter
}

// NewTxFetcher wires a TxFetcher. parseTx recomputes a fetched payload's
// txid for the server-lie check in step "_get_transaction" (§4.4).
func NewTxFetcher(iface Interface, store WalletStore, events EventBus, parseTx TxParseFunc) *TxFetcher {
	return &TxFetcher{
		iface:           iface,
		store:           store,
		events:          events,
		parseTx:         parseTx,
		log:             log.NewModuleLogger(log.Sync),
		requestedTx:     make(map[TxID]int64),
		sentCounter:     metrics.NewRegisteredCounter("sync/txfetcher/sent", nil),
		answeredCounter: metrics.NewRegisteredCounter("sync/txfetcher/answered", nil),
	}
}

// Pending is the size of requestedTx (invariant 3, §8).
func (f *TxFetcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requestedTx)
}

// RequestMissingTxs is _request_missing_txs (§4.4): skips entries already
// in flight or already completely stored, then fans the rest out under one
// task group and waits for the whole batch.
func (f *TxFetcher) RequestMissingTxs(ctx context.Context, hist []HistoryEntry, allowServerNotFindingTx bool) error {
	work := make([]HistoryEntry, 0, len(hist))

	f.mu.Lock()
	for _, e := range hist {
		if e.Pruned {
			continue
		}
		if _, inFlight := f.requestedTx[e.TxID]; inFlight {
			continue
		}
		if existing, err := f.store.GetTransaction(e.TxID); err == nil && existing != nil && existing.Complete {
			continue
		}
		f.requestedTx[e.TxID] = e.Height
		work = append(work, e)
	}
	f.mu.Unlock()

	if len(work) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range work {
		e := e
		g.Go(func() error {
			return f.getTransaction(gctx, e.TxID, allowServerNotFindingTx)
		})
	}
	return g.Wait()
}

// getTransaction is _get_transaction (§4.4).
func (f *TxFetcher) getTransaction(ctx context.Context, id TxID, allowNotFound bool) (err error) {
	f.sentCounter.Inc(1)
	defer func() {
		f.answeredCounter.Inc(1)
		f.mu.Lock()
		delete(f.requestedTx, id)
		f.mu.Unlock()
	}()

	f.mu.Lock()
	height := f.requestedTx[id]
	f.mu.Unlock()

	raw, rpcErr := f.iface.GetTransaction(ctx, id)
	if rpcErr != nil {
		if allowNotFound {
			f.log.Debug("transaction not found on server, discarding", "txid", id.String(), "err", rpcErr)
			return nil
		}
		return &TransientFetchFailure{TxID: id, Err: rpcErr}
	}

	tx, parsedID, err := f.parseTx(raw)
	if err != nil {
		return err
	}
	if parsedID != id {
		f.log.Error("server returned a transaction whose txid does not match the request", "requested", id.String(), "got", parsedID.String())
		return ErrSynchronizerFailure
	}

	if err := f.store.ReceiveTxCallback(id, tx, height); err != nil {
		f.log.Error("failed to commit transaction to store", "txid", id.String(), "err", err)
		return nil
	}

	f.events.NewTransaction(f.store, tx)
	return nil
}
