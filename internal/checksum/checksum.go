// Package checksum fingerprints cached item values so a rebuild can tell
// added, changed and unchanged items apart.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumJSON returns the digest of v's compact JSON encoding. Encodings that
// differ only in whitespace hash the same.
func SumJSON(v any) (string, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("checksum: marshal: %w", err)
		}
		return Sum(b), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("checksum: compact: %w", err)
	}
	return Sum(buf.Bytes()), nil
}
