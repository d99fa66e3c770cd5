package sync_test

import (
	"context"
	gosync "sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/chainwallet/syncer/sync"
)

// scenarioServer is a minimal sync.Interface double for the scenario suite:
// each scripthash has a fixed history and the server hands back that
// history's hash on subscribe.
type scenarioServer struct {
	mu      gosync.Mutex
	history map[sync.Scripthash][]sync.HistoryEntry
	txs     map[sync.TxID][]byte
}

func newScenarioServer() *scenarioServer {
	return &scenarioServer{
		history: make(map[sync.Scripthash][]sync.HistoryEntry),
		txs:     make(map[sync.TxID][]byte),
	}
}

func (s *scenarioServer) SubscribeScripthash(ctx context.Context, sh sync.Scripthash) (sync.AddressStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sync.HashHistory(s.history[sh]), nil
}

func (s *scenarioServer) GetHistoryForScripthash(ctx context.Context, sh sync.Scripthash) ([]sync.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sync.HistoryEntry{}, s.history[sh]...), nil
}

func (s *scenarioServer) GetTransaction(ctx context.Context, id sync.TxID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id], nil
}

func (s *scenarioServer) Unsubscribe(ctx context.Context) error { return nil }

func (s *scenarioServer) setHistory(sh sync.Scripthash, hist []sync.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[sh] = hist
}

func (s *scenarioServer) putTx(id sync.TxID, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[id] = raw
}

type scenarioStore struct {
	mu       gosync.Mutex
	history  map[string][]sync.HistoryEntry
	txs      map[sync.TxID]*sync.Tx
	addrs    []string
	upToDate bool
}

func newScenarioStore(addrs ...string) *scenarioStore {
	return &scenarioStore{
		history: make(map[string][]sync.HistoryEntry),
		txs:     make(map[sync.TxID]*sync.Tx),
		addrs:   addrs,
	}
}

func (s *scenarioStore) GetAddrHistory(addr string) ([]sync.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sync.HistoryEntry{}, s.history[addr]...), nil
}

func (s *scenarioStore) GetTransaction(id sync.TxID) (*sync.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id], nil
}

func (s *scenarioStore) GetHistory() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.history))
	for addr := range s.history {
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (s *scenarioStore) GetAddresses() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.addrs...), nil
}

func (s *scenarioStore) ReceiveHistoryCallback(addr string, hist []sync.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[addr] = append([]sync.HistoryEntry{}, hist...)
	return nil
}

func (s *scenarioStore) ReceiveTxCallback(id sync.TxID, tx *sync.Tx, height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[id] = tx
	return nil
}

func (s *scenarioStore) Synchronize() error { return nil }

func (s *scenarioStore) IsUpToDate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upToDate
}

func (s *scenarioStore) SetUpToDate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upToDate = v
}

func (s *scenarioStore) hasTx(id sync.TxID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id] != nil
}

func scenarioScripthashOf(addr string) sync.Scripthash {
	var sh sync.Scripthash
	copy(sh[:], addr)
	return sh
}

func scenarioParseTx(raw []byte) (*sync.Tx, sync.TxID, error) {
	var id sync.TxID
	copy(id[:], raw)
	return &sync.Tx{ID: id, Raw: raw, Complete: true}, id, nil
}

func scenarioTxID(b byte) sync.TxID {
	var id sync.TxID
	id[0] = b
	return id
}

var _ = Describe("synchronizer", func() {
	var (
		server *scenarioServer
		store  *scenarioStore
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		server = newScenarioServer()
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	// S1: a freshly-added address with no server-side history converges to
	// up to date with nothing fetched.
	It("converges to up to date for an address with empty history", func() {
		store = newScenarioStore("addr1")
		synchronizer := sync.NewSynchronizer(server, store, sync.NewLocalEventBus(), func(string) bool { return true }, scenarioScripthashOf, scenarioParseTx, 10*time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- synchronizer.Run(ctx) }()

		Eventually(synchronizer.UpToDate, time.Second, 10*time.Millisecond).Should(BeTrue())
		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	// S1 (address with history): the server reports one confirmed entry; the
	// synchronizer fetches its transaction and commits it to the store.
	It("fetches a transaction referenced by server-reported history", func() {
		addr := "addr1"
		sh := scenarioScripthashOf(addr)
		txid := scenarioTxID(7)
		server.setHistory(sh, []sync.HistoryEntry{{TxID: txid, Height: 100}})
		server.putTx(txid, func() []byte {
			raw := make([]byte, 32)
			copy(raw, txid[:])
			return raw
		}())

		store = newScenarioStore(addr)
		synchronizer := sync.NewSynchronizer(server, store, sync.NewLocalEventBus(), func(string) bool { return true }, scenarioScripthashOf, scenarioParseTx, 10*time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- synchronizer.Run(ctx) }()

		Eventually(func() bool { return store.hasTx(txid) }, time.Second, 10*time.Millisecond).Should(BeTrue())
		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	// Add rejects an invalid address synchronously (the InvalidAddress error
	// kind).
	It("rejects an invalid address synchronously", func() {
		store = newScenarioStore()
		synchronizer := sync.NewSynchronizer(server, store, sync.NewLocalEventBus(), func(string) bool { return false }, scenarioScripthashOf, scenarioParseTx, 10*time.Millisecond)
		Expect(synchronizer.Add("bad-addr")).To(MatchError(sync.ErrInvalidAddress))
	})
})
