package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxFetcherSkipsPrunedAndComplete(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	completeID := txIDForTest(1)
	store.txs[completeID] = &Tx{ID: completeID, Complete: true}

	f := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	hist := []HistoryEntry{
		{TxID: txIDForTest(2), Height: 1, Pruned: true},
		{TxID: completeID, Height: 2},
	}
	err := f.RequestMissingTxs(context.Background(), hist, false)
	require.NoError(t, err)
	assert.Equal(t, 0, iface.seenTx(txIDForTest(2)))
	assert.Equal(t, 0, iface.seenTx(completeID))
	assert.Equal(t, 0, f.Pending())
}

func TestTxFetcherFetchesMissingTx(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	id := txIDForTest(5)
	iface.txs[id] = rawForTest(id)

	f := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	err := f.RequestMissingTxs(context.Background(), []HistoryEntry{{TxID: id, Height: 10}}, false)
	require.NoError(t, err)

	tx, err := store.GetTransaction(id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, id, tx.ID)
	assert.Equal(t, 0, f.Pending())
}

func TestTxFetcherDetectsServerLieAboutTxID(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	requested := txIDForTest(5)
	wrongID := txIDForTest(6)
	iface.txs[requested] = rawForTest(wrongID)

	f := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	err := f.RequestMissingTxs(context.Background(), []HistoryEntry{{TxID: requested, Height: 10}}, false)
	assert.True(t, errors.Is(err, ErrSynchronizerFailure))
}

func TestTxFetcherPropagatesTransientFailureWhenNotAllowed(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	id := txIDForTest(5)
	iface.txErr[id] = errors.New("connection reset")

	f := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	err := f.RequestMissingTxs(context.Background(), []HistoryEntry{{TxID: id, Height: 10}}, false)
	var transient *TransientFetchFailure
	assert.True(t, errors.As(err, &transient))
}

func TestTxFetcherSwallowsNotFoundWhenHealing(t *testing.T) {
	iface := newFakeInterface()
	store := newFakeStore()
	id := txIDForTest(5)
	iface.txErr[id] = errors.New("no such transaction")

	f := NewTxFetcher(iface, store, NewLocalEventBus(), parseTxForTest)
	err := f.RequestMissingTxs(context.Background(), []HistoryEntry{{TxID: id, Height: 10}}, true)
	require.NoError(t, err)
}
