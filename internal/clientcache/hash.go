package clientcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HashProperties computes a stable digest of a config property map. Keys are
// emitted in sorted order so two maps with equal contents always hash the
// same regardless of iteration order.
func HashProperties(props map[string]any) (string, error) {
	canonical, err := canonicalJSON(props)
	if err != nil {
		return "", fmt.Errorf("failed to hash config properties: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) (string, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return "", err
			}
			b.Write(keyJSON)
			b.WriteByte(':')
			inner, err := canonicalJSON(val[k])
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		}
		b.WriteByte('}')
		return b.String(), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			inner, err := canonicalJSON(item)
			if err != nil {
				return "", err
			}
			b.WriteString(inner)
		}
		b.WriteByte(']')
		return b.String(), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
