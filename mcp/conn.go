// Line-delimited JSON-RPC 2.0 connection core.
//
// Calls are serialized: each request must be answered by the next response
// line, and the response ID must match. A cancelled wait or a failed read
// leaves the stream at an unknown position, so the connection is poisoned
// and every later call fails fast with the original cause.
//
// Information Hiding:
// - JSON-RPC framing and request ID allocation
// - Poisoned-connection bookkeeping

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// rpcConn serializes JSON-RPC calls over a request/response stream pair.
type rpcConn struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	nextID uint64
	broken error
}

func newRPCConn(w io.Writer, r io.Reader) *rpcConn {
	return &rpcConn{w: w, r: bufio.NewReader(r)}
}

// Call sends one request and waits for its response. Cancellation is
// honored while waiting; the abandoned read poisons the connection.
func (c *rpcConn) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, fmt.Errorf("connection unusable: %w", c.broken)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	request := rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := c.w.Write(append(payload, '\n')); err != nil {
		c.broken = err
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	reads := make(chan readResult, 1)
	go func() {
		line, err := c.r.ReadBytes('\n')
		reads <- readResult{line: line, err: err}
	}()

	var line []byte
	select {
	case <-ctx.Done():
		c.broken = ctx.Err()
		return nil, ctx.Err()
	case res := <-reads:
		if res.err != nil {
			c.broken = res.err
			return nil, fmt.Errorf("failed to read response: %w", res.err)
		}
		line = res.line
	}

	var response rpcResponse
	if err := json.Unmarshal(line, &response); err != nil {
		c.broken = err
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.ID != request.ID {
		c.broken = fmt.Errorf("response id %d does not match request id %d", response.ID, request.ID)
		return nil, c.broken
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}
