package ethrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClient subscribes to new chain heads over a JSON-RPC WebSocket.
// A connection error terminates all subscriptions: their channels are closed
// and Err reports the cause. Callers decide whether to reconnect.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription id to channel
	subs   map[string]chan Head
	subsMu sync.RWMutex

	// pendingSubs maps request id to a subscription awaiting its id
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	errMu sync.Mutex
	err   error

	done chan struct{}
	wg   sync.WaitGroup
}

// pendingSub is registered under its subscription id by the read loop
// before the reply is delivered, so no head is lost between the two.
type pendingSub struct {
	reply chan error
	heads chan Head
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[string]chan Head),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SubscribeNewHeads subscribes to newHeads notifications.
// The returned channel is closed when the client is closed or the connection fails.
func (c *WSClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	pending := &pendingSub{
		reply: make(chan error, 1),
		heads: make(chan Head, 256),
	}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		dropPending()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	var replyErr error
	select {
	case err, ok := <-pending.reply:
		if !ok {
			return nil, fmt.Errorf("client closed")
		}
		replyErr = err
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return nil, fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-ctx.Done():
		dropPending()
		return nil, ctx.Err()
	}

	if replyErr != nil {
		return nil, fmt.Errorf("eth_subscribe: %w", replyErr)
	}

	return pending.heads, nil
}

// Err returns the error that terminated the connection, if any.
func (c *WSClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.connMu.Unlock()

	c.wg.Wait()
	c.closeSubscriptions()
	return nil
}

func (c *WSClient) closeSubscriptions() {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.reply)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()
}

// readLoop reads messages and dispatches them until the connection ends.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.errMu.Lock()
			c.err = fmt.Errorf("websocket read: %w", err)
			c.errMu.Unlock()
			// Close terminates the loops; subscribers observe closed channels
			go c.Close()
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	if env.Method == "eth_subscription" && env.Params != nil {
		c.handleHead(env.Params)
		return
	}

	if env.ID == 0 {
		return
	}

	c.pendingSubsMu.Lock()
	pending, ok := c.pendingSubs[env.ID]
	if ok {
		delete(c.pendingSubs, env.ID)
	}
	c.pendingSubsMu.Unlock()
	if !ok {
		return
	}

	var replyErr error
	var subID string
	if env.Error != nil {
		replyErr = env.Error
	} else if err := json.Unmarshal(env.Result, &subID); err != nil {
		replyErr = fmt.Errorf("decode subscription id: %w", err)
	} else {
		c.subsMu.Lock()
		c.subs[subID] = pending.heads
		c.subsMu.Unlock()
	}

	pending.reply <- replyErr
}

// handleHead dispatches a head notification to its subscriber.
func (c *WSClient) handleHead(params *wsNotificationParams) {
	var raw getBlockResult
	if err := json.Unmarshal(params.Result, &raw); err != nil {
		return
	}
	head := Head{
		Number:    uint64(raw.Number),
		Hash:      raw.Hash,
		Timestamp: int64(raw.Timestamp),
	}

	c.subsMu.RLock()
	ch, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send, never drop heads
		select {
		case ch <- head:
		case <-c.done:
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			// A dead connection surfaces in readLoop
			_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Method  string                `json:"method"`
	Result  json.RawMessage       `json:"result"`
	Error   *RPCError             `json:"error"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// HeadNumbers adapts a head channel to a channel of block numbers.
func HeadNumbers(ctx context.Context, heads <-chan Head) <-chan uint64 {
	out := make(chan uint64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-heads:
				if !ok {
					return
				}
				select {
				case out <- h.Number:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
