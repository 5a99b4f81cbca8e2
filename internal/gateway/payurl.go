package gateway

import (
	"net/url"
	"strings"
)

// PayURL builds the signed gateway redirect URL for a checkout. The caller
// supplies the protocol fields (out_trade_no, name, money, notify/return
// URLs); the merchant id and signature are filled in here.
func PayURL(endpoint, merchantID, secret string, params map[string]string) string {
	full := make(map[string]string, len(params)+3)
	for k, v := range params {
		full[k] = v
	}
	full["pid"] = merchantID
	full[FieldSignType] = "MD5"
	full[FieldSign] = Sign(full, secret)

	values := url.Values{}
	for k, v := range full {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + values.Encode()
}
