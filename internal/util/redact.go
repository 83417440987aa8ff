package util

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const redactedValue = "[REDACTED]"

// RedactSensitiveJSON replaces the values of secret-looking keys in a JSON payload, keeping key
// order. A payload that is not a JSON object or array is returned unchanged.
func RedactSensitiveJSON(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() && !root.IsArray() {
		return body
	}
	return redactResult(make([]byte, 0, len(body)), root)
}

func redactResult(dst []byte, r gjson.Result) []byte {
	switch {
	case r.IsObject():
		dst = append(dst, '{')
		first := true
		r.ForEach(func(key, value gjson.Result) bool {
			if !first {
				dst = append(dst, ',')
			}
			first = false
			dst = append(dst, key.Raw...)
			dst = append(dst, ':')
			if isSensitiveKey(key.String()) {
				dst = append(dst, `"`+redactedValue+`"`...)
			} else {
				dst = redactResult(dst, value)
			}
			return true
		})
		return append(dst, '}')
	case r.IsArray():
		dst = append(dst, '[')
		first := true
		r.ForEach(func(_, value gjson.Result) bool {
			if !first {
				dst = append(dst, ',')
			}
			first = false
			dst = redactResult(dst, value)
			return true
		})
		return append(dst, ']')
	default:
		return append(dst, r.Raw...)
	}
}

// MaskSensitiveQuery masks the values of secret-looking query parameters in a raw query string.
// Parameter order is preserved.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, _, hasValue := strings.Cut(part, "=")
		if !hasValue {
			continue
		}
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		if isSensitiveKey(name) {
			parts[i] = key + "=" + url.QueryEscape(redactedValue)
		}
	}
	return strings.Join(parts, "&")
}

// RedactHeaders renders headers for logging with secret values masked.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(k, "authorization"),
		strings.Contains(k, "cookie"),
		strings.Contains(k, "api_key"),
		strings.Contains(k, "api-key"),
		strings.Contains(k, "apikey"),
		strings.Contains(k, "secret"),
		strings.Contains(k, "token"),
		strings.Contains(k, "password"):
		return true
	case k == "key":
		return true
	default:
		return false
	}
}
