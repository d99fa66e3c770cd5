package sync

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// HashHistory is the StatusHasher (§4.1): a pure function from an ordered
// history list to the server's status convention. Empty input hashes to
// nil. The digest is the 32-byte SHA-256 (StatusHex renders it as lowercase
// hex) of the ASCII concatenation, txids in lowercase hex,
// "txid1:height1:txid2:height2:...:txidN:heightN:" — note the trailing
// colon, and heights rendered as signed decimal with no padding. This must
// stay bit-identical to the server's own computation; any deviation
// produces spurious resubscribes.
func HashHistory(hist []HistoryEntry) AddressStatus {
	if len(hist) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(hist)*72)
	for _, e := range hist {
		buf = append(buf, []byte(fmt.Sprintf("%x", e.TxID[:]))...)
		buf = append(buf, ':')
		buf = append(buf, []byte(strconv.FormatInt(e.Height, 10))...)
		buf = append(buf, ':')
	}
	sum := sha256.Sum256(buf)
	return AddressStatus(&sum)
}

// StatusEqual compares two AddressStatus values by value rather than
// pointer identity (both nil, or both non-nil with equal bytes).
func StatusEqual(a, b AddressStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StatusHex renders a status as the lowercase hex string used on the wire
// (the webhook payload, §6), or "" for nil.
func StatusHex(s AddressStatus) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%x", s[:])
}
