// Package idhash derives stable journal keys for executed orders.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"btc-dca-agent/internal/domain"
)

// TradeID hashes pair|side|order id|fill time in unix ms to 64 hex characters.
// The same fill journaled twice maps to the same key, so the append-only
// journals reject the duplicate.
func TradeID(pair string, side domain.Side, orderID string, filledAt time.Time) string {
	key := strings.Join([]string{
		pair,
		string(side),
		orderID,
		strconv.FormatInt(filledAt.UnixMilli(), 10),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
