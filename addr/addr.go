// Package addr supplies the small, pure crypto/validation functions
// sync.Engine and notify.Dispatcher take as injected dependencies
// (sync.AddressValidator, sync.ScripthashFn, sync.TxParseFunc), kept out of
// the core synchronization logic the same way the teacher keeps consensus
// and crypto concerns in leaf packages rather than inlined in node/cn.
package addr

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/pkg/errors"

	chainsync "github.com/chainwallet/syncer/sync"
)

// Valid is a minimal structural AddressValidator: non-empty and no longer
// than 128 bytes. Real deployments inject a chain-specific validator
// (base58check, bech32, ...); none of the example pack's dependencies cover
// that decoding, so this stays a conservative structural check rather than
// a fabricated chain-specific decoder.
func Valid(address string) bool {
	return len(address) > 0 && len(address) <= 128
}

// Scripthash derives the Electrum-protocol subscription key for address:
// sha256 of the address string, byte-reversed to match the wire's
// little-endian convention for scripthashes.
func Scripthash(address string) chainsync.Scripthash {
	sum := sha256.Sum256([]byte(address))
	var sh chainsync.Scripthash
	for i, b := range sum {
		sh[len(sum)-1-i] = b
	}
	return sh
}

// rawTx is the JSON envelope GetTransaction's raw payload is expected to
// decode as. Real server payloads are chain-native serialized transactions;
// this mirrors the teacher's own fixture convention of JSON-encoding test
// payloads rather than pulling in a chain-specific transaction codec the
// example pack never supplies one of.
type rawTx struct {
	ID      string   `json:"id"`
	Outputs []string `json:"outputs"`
}

// ParseTx implements sync.TxParseFunc over the rawTx JSON envelope.
func ParseTx(raw []byte) (*chainsync.Tx, chainsync.TxID, error) {
	var rt rawTx
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, chainsync.TxID{}, errors.Wrap(err, "decode transaction payload")
	}
	sum := sha256.Sum256([]byte(rt.ID))
	var id chainsync.TxID
	copy(id[:], sum[:])
	return &chainsync.Tx{ID: id, Raw: raw, Complete: true}, id, nil
}
