// Package storage implements sync.WalletStore (§6) on top of the
// key-value Database backends adapted from the teacher's storage layer.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chainwallet/syncer/log"
	chainsync "github.com/chainwallet/syncer/sync"
	"github.com/chainwallet/syncer/storage/database"
)

const (
	keyAddrList     = "addrs"
	keyHistAddrList = "hist-addrs"
	prefixHistory   = "h:"
	prefixTx        = "t:"
)

// Store is a sync.WalletStore backed by a database.Database key-value
// store. It is the Synchronizer's own persistence layer, distinct from
// notify.WatchStore's webhook-mapping persistence.
type Store struct {
	db  database.Database
	log log.Logger

	mu        sync.Mutex
	addrs     []string
	histAddrs map[string]struct{}
	upToDate  bool
}

// NewStore wraps any database.Database, loading the address index eagerly.
func NewStore(db database.Database) (*Store, error) {
	s := &Store{
		db:        db,
		log:       log.NewModuleLogger(log.Storage),
		histAddrs: make(map[string]struct{}),
	}
	if err := s.loadStringList(keyAddrList, &s.addrs); err != nil {
		return nil, err
	}
	var histAddrs []string
	if err := s.loadStringList(keyHistAddrList, &histAddrs); err != nil {
		return nil, err
	}
	for _, addr := range histAddrs {
		s.histAddrs[addr] = struct{}{}
	}
	return s, nil
}

// NewLevelDBStore opens (or creates) a LevelDB-backed Store at dir.
func NewLevelDBStore(dir string, cacheMB, handles int) (*Store, error) {
	db, err := database.NewLDBDatabase(dir, cacheMB, handles)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

// NewBadgerStore opens (or creates) a Badger-backed Store at dir.
func NewBadgerStore(dir string) (*Store, error) {
	db, err := database.NewBadgerDB(dir)
	if err != nil {
		return nil, err
	}
	return NewStore(db)
}

func (s *Store) loadStringList(key string, out *[]string) error {
	raw, err := s.db.Get([]byte(key))
	if err != nil || raw == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// AddAddress registers a new wallet address for synchronization. It is not
// part of sync.WalletStore; it's the entry point a wallet key-derivation
// component (out of this module's scope) uses to grow the watched set.
func (s *Store) AddAddress(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.addrs {
		if a == addr {
			return nil
		}
	}
	s.addrs = append(s.addrs, addr)
	raw, err := json.Marshal(s.addrs)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(keyAddrList), raw)
}

// GetAddrHistory implements sync.WalletStore.
func (s *Store) GetAddrHistory(addr string) ([]chainsync.HistoryEntry, error) {
	raw, err := s.db.Get([]byte(prefixHistory + addr))
	if err != nil || raw == nil {
		return nil, nil
	}
	return decodeHistory(raw)
}

// GetTransaction implements sync.WalletStore.
func (s *Store) GetTransaction(id chainsync.TxID) (*chainsync.Tx, error) {
	raw, err := s.db.Get([]byte(prefixTx + id.String()))
	if err != nil || raw == nil {
		return nil, nil
	}
	var rec jsonTx
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	payload, err := hex.DecodeString(rec.Raw)
	if err != nil {
		return nil, err
	}
	return &chainsync.Tx{ID: id, Raw: payload, Complete: rec.Complete}, nil
}

// GetHistory implements sync.WalletStore: every address that has at least
// one committed history row.
func (s *Store) GetHistory() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.histAddrs))
	for addr := range s.histAddrs {
		out = append(out, addr)
	}
	return out, nil
}

// GetAddresses implements sync.WalletStore.
func (s *Store) GetAddresses() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.addrs...), nil
}

// ReceiveHistoryCallback implements sync.WalletStore.
func (s *Store) ReceiveHistoryCallback(addr string, hist []chainsync.HistoryEntry) error {
	raw, err := encodeHistory(hist)
	if err != nil {
		return err
	}
	if err := s.db.Put([]byte(prefixHistory+addr), raw); err != nil {
		return err
	}

	s.mu.Lock()
	_, known := s.histAddrs[addr]
	if !known {
		s.histAddrs[addr] = struct{}{}
	}
	s.mu.Unlock()
	if known {
		return nil
	}

	list, err := s.GetHistory()
	if err != nil {
		return err
	}
	listRaw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(keyHistAddrList), listRaw)
}

// ReceiveTxCallback implements sync.WalletStore. height is accepted for
// interface conformance but is not separately indexed: HistoryEntry.Height
// already pins confirmation height in the history row.
func (s *Store) ReceiveTxCallback(id chainsync.TxID, tx *chainsync.Tx, height int64) error {
	raw, err := json.Marshal(jsonTx{Raw: hex.EncodeToString(tx.Raw), Complete: tx.Complete})
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefixTx+id.String()), raw)
}

// Synchronize implements sync.WalletStore. Deriving fresh receive/change
// addresses from a wallet's key material is a cryptographic-primitive
// concern outside this module's scope (§1 Non-goals); a wallet component
// that owns key derivation should call AddAddress directly instead, making
// Synchronize a no-op here.
func (s *Store) Synchronize() error { return nil }

// IsUpToDate implements sync.WalletStore. Up-to-date state is session
// transient and intentionally not persisted: a restart always re-runs the
// healing pass.
func (s *Store) IsUpToDate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upToDate
}

// SetUpToDate implements sync.WalletStore.
func (s *Store) SetUpToDate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upToDate = v
}

type jsonHistoryEntry struct {
	TxID   string `json:"txid"`
	Height int64  `json:"height"`
	Fee    *int64 `json:"fee,omitempty"`
	Pruned bool   `json:"pruned,omitempty"`
}

type jsonTx struct {
	Raw      string `json:"raw"`
	Complete bool   `json:"complete"`
}

func encodeHistory(hist []chainsync.HistoryEntry) ([]byte, error) {
	out := make([]jsonHistoryEntry, len(hist))
	for i, e := range hist {
		out[i] = jsonHistoryEntry{TxID: e.TxID.String(), Height: e.Height, Fee: e.Fee, Pruned: e.Pruned}
	}
	return json.Marshal(out)
}

func decodeHistory(raw []byte) ([]chainsync.HistoryEntry, error) {
	var in []jsonHistoryEntry
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make([]chainsync.HistoryEntry, len(in))
	for i, e := range in {
		id, err := decodeTxID(e.TxID)
		if err != nil {
			return nil, err
		}
		out[i] = chainsync.HistoryEntry{TxID: id, Height: e.Height, Fee: e.Fee, Pruned: e.Pruned}
	}
	return out, nil
}

func decodeTxID(hexStr string) (chainsync.TxID, error) {
	var id chainsync.TxID
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("bad txid length %d, want %d", len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}
