package sync

import "context"

// Interface is the method surface the core consumes from the index-server
// RPC client. Wire codec and connection management are external concerns
// (see transport.Client for a concrete implementation); the core only needs
// these four calls, plus subscription updates delivered to
// Engine.NotifyStatus.
type Interface interface {
	// SubscribeScripthash subscribes to a scripthash and returns its current
	// status. Subsequent pushes for the same scripthash are delivered outside
	// this interface, by the implementation calling Engine.NotifyStatus
	// (transport.Client does so through its SetPushHandler hook). A server error with
	// message "history too large" must be surfaced as ErrGracefulDisconnect.
	SubscribeScripthash(ctx context.Context, sh Scripthash) (AddressStatus, error)

	// GetHistoryForScripthash fetches the full history list for a
	// scripthash.
	GetHistoryForScripthash(ctx context.Context, sh Scripthash) ([]HistoryEntry, error)

	// GetTransaction fetches a single raw transaction by txid. Not-found is
	// surfaced as an error.
	GetTransaction(ctx context.Context, id TxID) ([]byte, error)

	// Unsubscribe tells the session to stop delivering pushes for the
	// status channel entirely; called once, on engine shutdown.
	Unsubscribe(ctx context.Context) error
}

// StatusPush is one (scripthash, status) notification delivered by the
// session out-of-band from any particular subscribe call.
type StatusPush struct {
	Scripthash Scripthash
	Status     AddressStatus
}

// WalletStore is the set of wallet-storage operations the core depends on.
// History table, transaction table, address generation and label/metadata
// handling all live on the other side of this interface.
type WalletStore interface {
	GetAddrHistory(addr string) ([]HistoryEntry, error)
	// GetTransaction returns the stored transaction for txid, or nil if
	// absent. A non-nil, incomplete (partial/unsigned) transaction is
	// treated as "missing" by TxFetcher and triggers a refetch.
	GetTransaction(id TxID) (*Tx, error)
	// GetHistory enumerates addresses that currently have stored history
	// rows (used by ProgressLoop to heal dangling tx references).
	GetHistory() ([]string, error)
	// GetAddresses enumerates every address the wallet knows about.
	GetAddresses() ([]string, error)

	ReceiveHistoryCallback(addr string, hist []HistoryEntry) error
	ReceiveTxCallback(id TxID, tx *Tx, height int64) error

	// Synchronize may block and may generate new addresses; it is always
	// called off the engine's loop, in a worker goroutine, and must
	// therefore be safe to call concurrently with every other method above.
	Synchronize() error

	IsUpToDate() bool
	SetUpToDate(bool)
}

// EventBus is the injected publisher for the core's two named events,
// standing in for the source's process-wide global event bus (§9).
type EventBus interface {
	NewTransaction(store WalletStore, tx *Tx)
	WalletUpdated(store WalletStore)
}

// AddressValidator is the external predicate Engine.Add uses to reject
// syntactically invalid addresses before they ever touch engine state.
type AddressValidator func(addr string) bool

// ScripthashFn derives the server-side subscription key for an address.
type ScripthashFn func(addr string) Scripthash

// TxParseFunc parses a raw transaction payload (as returned by
// Interface.GetTransaction) into a Tx and recomputes its txid. Like address
// validation and scripthash derivation, transaction parsing/hashing is a
// cryptographic primitive out of the core's scope (§1) and is supplied by
// the caller.
type TxParseFunc func(raw []byte) (tx *Tx, id TxID, err error)
