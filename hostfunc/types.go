package hostfunc

import (
	"fmt"

	"github.com/goccy/go-json"
)

// KV store types

type KVGetRequest struct {
	Key     string  `json:"key"`
	Default *string `json:"default"`
}

type KVSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HTTP types

type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type HTTPResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// decodeArgs converts the loosely typed args of a call into req.
func decodeArgs(args map[string]any, req any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, req); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
