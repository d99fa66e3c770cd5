package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatusHexNilForEmpty(t *testing.T) {
	assert.Nil(t, decodeStatusHex(nil))
	empty := ""
	assert.Nil(t, decodeStatusHex(&empty))
}

func TestDecodeStatusHexRoundTrip(t *testing.T) {
	hexStr := "aa00000000000000000000000000000000000000000000000000000000000000"[:64]
	status := decodeStatusHex(&hexStr)
	require.NotNil(t, status)
	assert.Equal(t, byte(0xaa), status[0])
}

func TestDecodeTxIDRejectsWrongLength(t *testing.T) {
	_, err := decodeTxID("abcd")
	assert.Error(t, err)
}

func TestDecodeTxIDRoundTrip(t *testing.T) {
	hexStr := "0100000000000000000000000000000000000000000000000000000000000000"[:64]
	id, err := decodeTxID(hexStr)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), id[0])
}
