package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashHistoryEmptyIsNil(t *testing.T) {
	assert.Nil(t, HashHistory(nil))
	assert.Nil(t, HashHistory([]HistoryEntry{}))
}

func TestHashHistoryDeterministic(t *testing.T) {
	hist := []HistoryEntry{
		{TxID: txIDForTest(1), Height: 100},
		{TxID: txIDForTest(2), Height: -1},
	}
	a := HashHistory(hist)
	b := HashHistory(append([]HistoryEntry{}, hist...))
	assert.True(t, StatusEqual(a, b))
}

func TestHashHistoryOrderSensitive(t *testing.T) {
	a := HashHistory([]HistoryEntry{
		{TxID: txIDForTest(1), Height: 1},
		{TxID: txIDForTest(2), Height: 2},
	})
	b := HashHistory([]HistoryEntry{
		{TxID: txIDForTest(2), Height: 2},
		{TxID: txIDForTest(1), Height: 1},
	})
	assert.False(t, StatusEqual(a, b))
}

func TestHashHistoryHeightSensitive(t *testing.T) {
	a := HashHistory([]HistoryEntry{{TxID: txIDForTest(1), Height: 100}})
	b := HashHistory([]HistoryEntry{{TxID: txIDForTest(1), Height: 101}})
	assert.False(t, StatusEqual(a, b))
}
