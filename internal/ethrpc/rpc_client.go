package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient is an Ethereum JSON-RPC 2.0 client over HTTP.
// It owns its connection pool; callers release it with Close.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
	observe     LatencyObserver
}

// LatencyObserver receives the duration of every request, retries included.
// Batches are reported as "batch:<method>".
type LatencyObserver func(method string, seconds float64)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLatencyObserver sets a hook called after every request.
func WithLatencyObserver(fn LatencyObserver) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Ethereum RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections held by the client.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC call.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.timedPost(ctx, method, body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// batch sends all requests as one JSON-RPC batch and returns raw results in request order.
// The batch fails as a whole if any element carries an error or is missing.
func (c *HTTPClient) batch(ctx context.Context, reqs []rpcRequest) ([]json.RawMessage, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	order := make(map[uint64]int, len(reqs))
	for i := range reqs {
		reqs[i].JSONRPC = "2.0"
		reqs[i].ID = c.requestID.Add(1)
		order[reqs[i].ID] = i
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	respBody, err := c.timedPost(ctx, "batch:"+reqs[0].Method, body)
	if err != nil {
		return nil, err
	}

	var responses []rpcResponse
	if err := json.Unmarshal(respBody, &responses); err != nil {
		// Some nodes answer a failed batch with a single error object
		var single rpcResponse
		if jerr := json.Unmarshal(respBody, &single); jerr == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("unmarshal batch response: %w", err)
	}

	results := make([]json.RawMessage, len(reqs))
	seen := 0
	for _, resp := range responses {
		idx, ok := order[resp.ID]
		if !ok {
			return nil, fmt.Errorf("batch response with unknown id %d", resp.ID)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s (request %d): %w", reqs[idx].Method, idx, resp.Error)
		}
		if results[idx] == nil {
			seen++
		}
		results[idx] = resp.Result
	}

	if seen != len(reqs) {
		return nil, fmt.Errorf("batch incomplete: got %d of %d responses", seen, len(reqs))
	}

	return results, nil
}

func (c *HTTPClient) timedPost(ctx context.Context, method string, body []byte) ([]byte, error) {
	if c.observe == nil {
		return c.post(ctx, body)
	}
	start := time.Now()
	defer func() { c.observe(method, time.Since(start).Seconds()) }()
	return c.post(ctx, body)
}

// post sends body with retries and exponential backoff.
// Transport failures, 429 and non-200 statuses are retried; RPC-level errors are not.
func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// BlockNumber returns the number of the most recent block.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// GetBlockHeader retrieves a block header by number without transactions.
// Returns nil if the block does not exist yet.
func (c *HTTPClient) GetBlockHeader(ctx context.Context, number uint64) (*BlockHeader, error) {
	params := []interface{}{AtBlock(number), false}

	var result *getBlockResult
	if err := c.call(ctx, "eth_getBlockByNumber", params, &result); err != nil {
		return nil, err
	}

	if result == nil {
		return nil, nil
	}

	return result.header(), nil
}

// getBlockResult is the raw RPC response for eth_getBlockByNumber.
type getBlockResult struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      string         `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

func (r *getBlockResult) header() *BlockHeader {
	return &BlockHeader{
		Number:    uint64(r.Number),
		Hash:      r.Hash,
		Timestamp: int64(r.Timestamp),
	}
}

// Call executes a read-only contract call at the given block.
func (c *HTTPClient) Call(ctx context.Context, msg CallMsg, block BlockRef) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, "eth_call", []interface{}{msg.toArg(), block}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// BatchCall executes all calls as one JSON-RPC batch pinned to the same block,
// so every result reflects the same state snapshot.
// Results are returned in call order; any failed element fails the whole batch.
func (c *HTTPClient) BatchCall(ctx context.Context, msgs []CallMsg, block BlockRef) ([][]byte, error) {
	reqs := make([]rpcRequest, len(msgs))
	for i, msg := range msgs {
		reqs[i] = rpcRequest{
			Method: "eth_call",
			Params: []interface{}{msg.toArg(), block},
		}
	}

	raw, err := c.batch(ctx, reqs)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(raw))
	for i, r := range raw {
		var b hexutil.Bytes
		if err := json.Unmarshal(r, &b); err != nil {
			return nil, fmt.Errorf("decode eth_call result %d: %w", i, err)
		}
		out[i] = b
	}

	return out, nil
}
