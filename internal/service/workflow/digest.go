package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// digest returns a short, stable content hash of a JSON-serializable value,
// used for the step_result.value_digest and run args_digest fields
// (spec.md §3, §4.3).
func digest(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

func digestOf(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return digest(raw), nil
}
