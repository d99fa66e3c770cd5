package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(iface *fakeInterface, store *fakeStore) *Reconciler {
	txFetcher := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	return NewReconciler(iface, store, scripthashOfForTest, txFetcher, NewLocalEventBus())
}

func TestReconcilerNoOpWhenStatusMatchesLocal(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	addr := "addr1"

	hist := []HistoryEntry{{TxID: txIDForTest(1), Height: 5}}
	require.NoError(t, store.ReceiveHistoryCallback(addr, hist))

	r := newTestReconciler(iface, store)
	err := r.OnStatus(context.Background(), addr, HashHistory(hist))
	require.NoError(t, err)

	sh := scripthashOfForTest(addr)
	assert.Equal(t, 0, iface.seenHistory(sh))
}

func TestReconcilerFetchesAndCommitsHistory(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	addr := "addr1"
	sh := scripthashOfForTest(addr)

	txid := txIDForTest(9)
	hist := []HistoryEntry{{TxID: txid, Height: 50}}
	iface.history[sh] = hist
	iface.txs[txid] = rawForTest(txid)

	r := newTestReconciler(iface, store)
	err := r.OnStatus(context.Background(), addr, HashHistory(hist))
	require.NoError(t, err)

	got, err := store.GetAddrHistory(addr)
	require.NoError(t, err)
	assert.Equal(t, hist, got)
	assert.Equal(t, 1, store.countReceivedTx(txid))
	assert.Equal(t, 0, r.Pending())
}

func TestReconcilerDropsOnStatusHashMismatch(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	addr := "addr1"
	sh := scripthashOfForTest(addr)

	serverHist := []HistoryEntry{{TxID: txIDForTest(1), Height: 1}}
	iface.history[sh] = serverHist
	claimedStatus := HashHistory([]HistoryEntry{{TxID: txIDForTest(2), Height: 2}})

	r := newTestReconciler(iface, store)
	err := r.OnStatus(context.Background(), addr, claimedStatus)
	require.NoError(t, err)

	got, err := store.GetAddrHistory(addr)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, r.Pending())
}

func TestReconcilerDropsOnDuplicateTxID(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	addr := "addr1"
	sh := scripthashOfForTest(addr)

	dupID := txIDForTest(1)
	hist := []HistoryEntry{{TxID: dupID, Height: 1}, {TxID: dupID, Height: 2}}
	iface.history[sh] = hist

	r := newTestReconciler(iface, store)
	err := r.OnStatus(context.Background(), addr, HashHistory(hist))
	require.NoError(t, err)

	got, err := store.GetAddrHistory(addr)
	require.NoError(t, err)
	assert.Empty(t, got)
}
