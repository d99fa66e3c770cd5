package sync

import "github.com/pkg/errors"

// Sentinel error kinds (§7). GracefulDisconnect and SynchronizerFailure
// escape Engine.Run, and so do a TransientFetchFailure or a payload parse
// error from a transaction fetch triggered by a history commit (not from the
// startup healing pass); everything else is handled locally so the
// long-running loop keeps going.
var (
	// ErrInvalidAddress is returned synchronously by Engine.Add when the
	// caller's address predicate rejects the address; it never touches
	// engine state.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrGracefulDisconnect is raised when the server reports "history too
	// large" on a subscribe; it aborts the engine so the owner can restart
	// with a fresh one.
	ErrGracefulDisconnect = errors.New("graceful disconnect: history too large")

	// ErrSynchronizerFailure is raised when a fetched transaction's
	// recomputed txid does not match the one requested — the server lied,
	// and the reconciliation that triggered the fetch must abort.
	ErrSynchronizerFailure = errors.New("synchronizer failure: txid mismatch")
)

// ServerLieError is logged and swallowed: duplicate txids or a status-hash
// mismatch in a history response. It is never propagated; the engine stays
// ready to accept the next, hopefully-corrected, notification.
type ServerLieError struct {
	Addr   string
	Reason string
}

func (e *ServerLieError) Error() string {
	return "server lie for " + e.Addr + ": " + e.Reason
}

// TransientFetchFailure wraps an RPC error on get_transaction. Whether it is
// discarded or propagated is the caller's decision (allowServerNotFindingTx).
type TransientFetchFailure struct {
	TxID TxID
	Err  error
}

func (e *TransientFetchFailure) Error() string {
	return "transient fetch failure for " + e.TxID.String() + ": " + e.Err.Error()
}

func (e *TransientFetchFailure) Unwrap() error { return e.Err }
