package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/leafsii/leafsii-vault/internal/api"
)

// rpcClient posts JSON-RPC 2.0 calls to the vault API.
type rpcClient struct {
	endpoint string
	caller   string
	http     *http.Client
	nextID   atomic.Int64
}

func newRPCClient(baseURL, caller string, timeout time.Duration) *rpcClient {
	return &rpcClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/jsonrpc",
		caller:   caller,
		http:     &http.Client{Timeout: timeout},
	}
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	var data api.ErrorResponse
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &data) == nil && data.Code != "" {
		return fmt.Sprintf("%s (%s, rpc %d): %s", data.Code, data.Kind, e.Code, data.Message)
	}
	return fmt.Sprintf("rpc %d: %s", e.Code, e.Message)
}

// Call invokes method with params and returns the raw result.
func (c *rpcClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		raw = b
	}
	body, err := json.Marshal(api.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.caller != "" {
		req.Header.Set(api.CallerHeader, c.caller)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected HTTP status %s", method, resp.Status)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if out.Error != nil {
		return nil, &RPCError{Code: out.Error.Code, Message: out.Error.Message, Data: out.Error.Data}
	}
	return out.Result, nil
}
