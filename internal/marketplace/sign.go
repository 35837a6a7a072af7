package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the request signature the upstream API expects: parameters
// sorted lexicographically by key, concatenated as key+value pairs, prefixed
// with the request path, HMAC-SHA256 with the app secret, uppercase hex.
//
// The upstream verifies this byte-for-byte, so key order and case matter.
// The sign parameter itself is never part of the signed payload.
func Sign(path string, params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(path)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
