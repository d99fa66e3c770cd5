package sync

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
)

// scripthashOfForTest derives a deterministic, fake scripthash so tests
// don't depend on any real address-decoding scheme.
func scripthashOfForTest(addr string) Scripthash {
	return sha256.Sum256([]byte("scripthash:" + addr))
}

func validateForTest(addr string) bool { return addr != "" }

// parseTxForTest treats the first 32 bytes of raw as the txid, so tests can
// construct "server lies about the txid" scenarios by simply changing
// those bytes.
func parseTxForTest(raw []byte) (*Tx, TxID, error) {
	if len(raw) < 32 {
		return nil, TxID{}, errors.New("raw payload too short")
	}
	var id TxID
	copy(id[:], raw[:32])
	return &Tx{ID: id, Raw: raw, Complete: true}, id, nil
}

func txIDForTest(b byte) TxID {
	var id TxID
	id[0] = b
	return id
}

func rawForTest(id TxID) []byte {
	raw := make([]byte, 32)
	copy(raw, id[:])
	return raw
}

type fakeInterface struct {
	mu sync.Mutex

	initialStatus map[Scripthash]AddressStatus
	subscribeErr  map[Scripthash]error
	subscribeSeen map[Scripthash]int

	history     map[Scripthash][]HistoryEntry
	historySeen map[Scripthash]int

	txs    map[TxID][]byte
	txErr  map[TxID]error
	txSeen map[TxID]int

	unsubscribed bool
}

func newFakeInterface() *fakeInterface {
	return &fakeInterface{
		initialStatus: make(map[Scripthash]AddressStatus),
		subscribeErr:  make(map[Scripthash]error),
		subscribeSeen: make(map[Scripthash]int),
		history:       make(map[Scripthash][]HistoryEntry),
		historySeen:   make(map[Scripthash]int),
		txs:           make(map[TxID][]byte),
		txErr:         make(map[TxID]error),
		txSeen:        make(map[TxID]int),
	}
}

func (f *fakeInterface) SubscribeScripthash(ctx context.Context, sh Scripthash) (AddressStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeSeen[sh]++
	if err, ok := f.subscribeErr[sh]; ok {
		return nil, err
	}
	return f.initialStatus[sh], nil
}

func (f *fakeInterface) GetHistoryForScripthash(ctx context.Context, sh Scripthash) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historySeen[sh]++
	return f.history[sh], nil
}

func (f *fakeInterface) GetTransaction(ctx context.Context, id TxID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txSeen[id]++
	if err, ok := f.txErr[id]; ok {
		return nil, err
	}
	return f.txs[id], nil
}

func (f *fakeInterface) Unsubscribe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = true
	return nil
}

func (f *fakeInterface) seenSubscribe(sh Scripthash) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeSeen[sh]
}

func (f *fakeInterface) seenHistory(sh Scripthash) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historySeen[sh]
}

func (f *fakeInterface) seenTx(id TxID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txSeen[id]
}

type fakeStore struct {
	mu       sync.Mutex
	history  map[string][]HistoryEntry
	txs      map[TxID]*Tx
	addrs    []string
	upToDate bool

	receivedTx []TxID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		history: make(map[string][]HistoryEntry),
		txs:     make(map[TxID]*Tx),
	}
}

func (s *fakeStore) GetAddrHistory(addr string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry{}, s.history[addr]...), nil
}

func (s *fakeStore) GetTransaction(id TxID) (*Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id], nil
}

func (s *fakeStore) GetHistory() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.history))
	for addr := range s.history {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (s *fakeStore) GetAddresses() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.addrs...), nil
}

func (s *fakeStore) ReceiveHistoryCallback(addr string, hist []HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[addr] = append([]HistoryEntry{}, hist...)
	return nil
}

func (s *fakeStore) ReceiveTxCallback(id TxID, tx *Tx, height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[id] = tx
	s.receivedTx = append(s.receivedTx, id)
	return nil
}

func (s *fakeStore) Synchronize() error { return nil }

func (s *fakeStore) IsUpToDate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upToDate
}

func (s *fakeStore) SetUpToDate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upToDate = v
}

func (s *fakeStore) countReceivedTx(id TxID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, got := range s.receivedTx {
		if got == id {
			n++
		}
	}
	return n
}
