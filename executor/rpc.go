package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chadboar/heartbeat-core/config"

	"github.com/cenkalti/backoff/v4"
)

// rpcRequest/rpcResponse mirror the Solana JSON-RPC envelope, grounded
// on the teacher's swaprpc.rpcRequest/rpcResponse shape.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// RPCClient is a JSON-RPC endpoint in the configured Solana RPC
// fallback chain, wrapped with the same transient-failure retry policy
// datasource.Client applies to HTTP GETs, adapted here for POST.
type RPCClient struct {
	name string
	url  string
	http *http.Client
	retry config.RetryPolicy
}

// NewRPCClient builds an RPCClient from one configured SourceEndpoint.
func NewRPCClient(ep config.SourceEndpoint) *RPCClient {
	name := ep.Name
	if name == "" {
		name = ep.BaseURL
	}
	return &RPCClient{
		name:  name,
		url:   ep.BaseURL,
		http:  &http.Client{Timeout: ep.Timeout},
		retry: ep.Retry,
	}
}

func (c *RPCClient) Name() string { return c.name }

// Call issues one JSON-RPC request, retrying transient (network / 5xx)
// failures per the endpoint's retry policy; an RPC-level error object in
// an otherwise-200 response is treated as permanent, since retrying a
// malformed request never succeeds.
func (c *RPCClient) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	op := func() error {
		body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: marshal request: %w", c.name, err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", c.name, err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: transport: %w", c.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s: upstream status %d", c.name, resp.StatusCode)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w", c.name, err)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("%s: upstream status %d: %s", c.name, resp.StatusCode, raw))
		}

		var envelope rpcResponse
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode envelope: %w", c.name, err))
		}
		if envelope.Error != nil {
			return backoff.Permanent(fmt.Errorf("%s: rpc error %d: %s", c.name, envelope.Error.Code, envelope.Error.Message))
		}
		if out != nil {
			wrapped := struct {
				Result json.RawMessage `json:"result"`
			}{Result: envelope.Result}
			wrappedBytes, err := json.Marshal(wrapped)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := json.Unmarshal(wrappedBytes, out); err != nil {
				return backoff.Permanent(fmt.Errorf("%s: decode result: %w", c.name, err))
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialBackoff
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 250 * time.Millisecond
	}
	bo.MaxElapsedTime = c.retry.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 5 * time.Second
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
