package sync

import (
	"sync"

	"github.com/chainwallet/syncer/log"
)

// LocalEventBus is the default EventBus: an in-process fan-out standing in
// for the source's global event bus (§9 "Global event bus" design note),
// grounded in the teacher's mux.Post/subscribe broadcast idiom but
// expressed as a plain registered-handler list rather than a typed mux,
// since the core only ever publishes two event names.
type LocalEventBus struct {
	mu                    sync.RWMutex
	newTxHandlers         []func(WalletStore, *Tx)
	walletUpdatedHandlers []func(WalletStore)
	log                   log.Logger
}

// NewLocalEventBus constructs an empty bus.
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{log: log.NewModuleLogger(log.Sync)}
}

// OnNewTransaction registers a handler for new_transaction.
func (b *LocalEventBus) OnNewTransaction(fn func(WalletStore, *Tx)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newTxHandlers = append(b.newTxHandlers, fn)
}

// OnWalletUpdated registers a handler for wallet_updated.
func (b *LocalEventBus) OnWalletUpdated(fn func(WalletStore)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.walletUpdatedHandlers = append(b.walletUpdatedHandlers, fn)
}

// NewTransaction implements EventBus.
func (b *LocalEventBus) NewTransaction(store WalletStore, tx *Tx) {
	b.mu.RLock()
	handlers := append([]func(WalletStore, *Tx){}, b.newTxHandlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(store, tx)
	}
}

// WalletUpdated implements EventBus.
func (b *LocalEventBus) WalletUpdated(store WalletStore) {
	b.mu.RLock()
	handlers := append([]func(WalletStore){}, b.walletUpdatedHandlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(store)
	}
}
