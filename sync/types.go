// Package sync implements the wallet synchronizer: the subscription engine
// that keeps a wallet's view of the blockchain consistent with a remote
// index server, plus the Synchronizer's history/transaction reconciliation
// on top of it.
package sync

import "fmt"

// Scripthash is the 32-byte server-side subscription key derived from an
// address.
type Scripthash [32]byte

func (s Scripthash) String() string { return fmt.Sprintf("%x", s[:]) }

// TxID is a 32-byte transaction id, rendered as lowercase hex in the status
// digest and in logs.
type TxID [32]byte

func (t TxID) String() string { return fmt.Sprintf("%x", t[:]) }

// HistoryEntry is one (txid, height) pair as received from, or stored
// alongside, an address's history. height semantics: >0 confirmed at that
// block height, 0 unconfirmed (mempool), <0 unconfirmed with unconfirmed
// parents. Fee is non-nil only when the server reported one alongside this
// entry.
type HistoryEntry struct {
	TxID   TxID
	Height int64
	Fee    *int64
	// Pruned marks a row recovered from storage that was written by an old
	// server's literal "*" sentinel for a pruned history entry (§4.5 S4).
	// ProgressLoop and TxFetcher skip these rather than attempting a fetch.
	Pruned bool
}

// AddressStatus is the per-address fingerprint: nil means empty history.
type AddressStatus *[32]byte

// Tx is the parsed transaction handed to WalletStore.receive_tx_callback and
// published on new_transaction. Raw carries the wire bytes as fetched from
// the server; Complete reports whether the payload is a fully signed,
// network-serializable transaction (a partial/unsigned placeholder is never
// complete, and is treated as "missing" by TxFetcher).
type Tx struct {
	ID       TxID
	Raw      []byte
	Complete bool
}

// requestedHistoryKey is the (address, status) dedup key for in-flight
// history fetches (§3 RequestedHistories).
type requestedHistoryKey struct {
	addr   string
	status string
}

func historyKey(addr string, status AddressStatus) requestedHistoryKey {
	if status == nil {
		return requestedHistoryKey{addr: addr, status: ""}
	}
	return requestedHistoryKey{addr: addr, status: fmt.Sprintf("%x", status[:])}
}
