package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// marshalText converts v to compact JSON TEXT for storage.
// HTML escaping is disabled so stored bodies match the result stream.
func marshalText(what string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unmarshalText reverses marshalText.
func unmarshalText(what, text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
