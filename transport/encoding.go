package transport

import (
	"encoding/hex"
	"fmt"

	chainsync "github.com/chainwallet/syncer/sync"
)

func decodeStatusHex(hexStr *string) chainsync.AddressStatus {
	if hexStr == nil || *hexStr == "" {
		return nil
	}
	var sum [32]byte
	b, err := hex.DecodeString(*hexStr)
	if err != nil || len(b) != len(sum) {
		return nil
	}
	copy(sum[:], b)
	return chainsync.AddressStatus(&sum)
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

func decodeHex(hexStr string) ([]byte, error) {
	return hex.DecodeString(hexStr)
}
