package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Well-known notification field names used by the payment gateway protocol.
const (
	FieldSign       = "sign"
	FieldSignType   = "sign_type"
	FieldOutTradeNo = "out_trade_no"
	FieldTradeNo    = "trade_no"
	FieldTradeStat  = "trade_status"

	// TradeSuccess is the trade_status sentinel reported for a completed payment.
	TradeSuccess = "TRADE_SUCCESS"
)

// Sign computes the gateway signature over params: empty values and the
// sign/sign_type fields are excluded, remaining fields are sorted by name and
// joined as k=v pairs with '&', then the shared secret is appended and the
// whole string MD5-hashed. MD5 is mandated by the gateway protocol.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == FieldSign || k == FieldSignType || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	sb.WriteString(secret)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the sign field of params matches the signature
// recomputed from the remaining fields and the shared secret.
func Verify(params map[string]string, secret string) bool {
	supplied := params[FieldSign]
	if supplied == "" {
		return false
	}
	return supplied == Sign(params, secret)
}
