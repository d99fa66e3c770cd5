// Package notify implements the Notifier (§2): a WebhookDispatcher that
// reuses sync.Engine for its subscription bookkeeping but, instead of
// reconciling history into a wallet store, fans status changes out to
// per-address webhook URLs.
package notify

// WatchStore persists the address -> webhook URL list mapping across
// restarts (§4.7 NEW). Load is called once at Notifier startup;
// Save/Delete are called synchronously from StartWatchingAddr/
// StopWatchingAddr so the mapping file/table never lags the in-memory set.
type WatchStore interface {
	// Load returns the full address -> URL-list mapping, in the order it
	// should be re-subscribed (WatchedAddresses invariant, §3).
	Load() (map[string][]string, error)

	// Save persists that addr now has url among its subscribers. Calling
	// Save for an (addr, url) pair that's already stored is a no-op.
	Save(addr, url string) error

	// Delete removes a single (addr, url) pairing. If addr has no
	// remaining URLs the backing row/key is removed entirely.
	Delete(addr, url string) error
}
