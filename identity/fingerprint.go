package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint hashes a field set into a 128-bit hex digest. Keys are
// serialized in sorted order so map iteration order never matters.
// Values must be one of the scalar types below; anything else is a
// programming error and panics.
func Fingerprint(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonical(k, fields[k]))
	}
	return digest([]byte(b.String()))
}

// FingerprintBytes hashes raw content, used for image files.
func FingerprintBytes(data []byte) string {
	return digest(data)
}

func digest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

func canonical(key string, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strconv.Quote(t)
	case *string:
		if t == nil {
			return ""
		}
		return strconv.Quote(*t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		panic(fmt.Sprintf("identity: unhashable value for %q: %T", key, v))
	}
}
