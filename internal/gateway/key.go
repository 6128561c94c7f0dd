package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var allowedMethods = map[string]struct{}{
	"getblockcount":     {},
	"getblock":          {},
	"getblockhash":      {},
	"getblockchaininfo": {},
}

// Allowed reports whether method may be forwarded to the origin.
func Allowed(method string) bool {
	_, ok := allowedMethods[method]
	return ok
}

// canonicalParams re-encodes params so equal requests share one cache key:
// whitespace is dropped, object keys are sorted and numbers keep their literal form.
// Empty or null params are treated as [].
func canonicalParams(params json.RawMessage) ([]json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "[]", nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if dec.More() {
		return nil, "", fmt.Errorf("%w: trailing data", ErrInvalidParams)
	}

	args := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		args[i] = b
	}

	canonical, err := json.Marshal(args)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return args, string(canonical), nil
}

// CacheKey derives the record key for (method, params).
func CacheKey(method string, params json.RawMessage) (string, error) {
	_, canonical, err := canonicalParams(params)
	if err != nil {
		return "", err
	}
	return cacheKey(method, canonical), nil
}

func cacheKey(method, canonical string) string {
	return method + ":" + canonical
}
