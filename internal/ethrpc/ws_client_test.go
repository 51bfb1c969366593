package ethrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHeadsServer confirms one eth_subscribe and then pushes the given head numbers.
func newHeadsServer(t *testing.T, heads []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("expected eth_subscribe, got %s", req.Method)
		}

		c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x9cef478923ff08bf67fde6c64013158d",
		})

		for _, number := range heads {
			c.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]interface{}{
					"subscription": "0x9cef478923ff08bf67fde6c64013158d",
					"result": map[string]interface{}{
						"number":    number,
						"hash":      "0xabc",
						"timestamp": "0x6553f100",
					},
				},
			})
		}

		// Keep connection open until client leaves
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSClient_SubscribeNewHeads(t *testing.T) {
	server := newHeadsServer(t, []string{"0x10", "0x11"})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	heads, err := client.SubscribeNewHeads(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewHeads: %v", err)
	}

	for _, want := range []uint64{0x10, 0x11} {
		select {
		case h := <-heads:
			if h.Number != want {
				t.Errorf("expected head %d, got %d", want, h.Number)
			}
			if h.Timestamp != 0x6553f100 {
				t.Errorf("unexpected timestamp %d", h.Timestamp)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for head %d", want)
		}
	}
}

func TestWSClient_CloseClosesSubscriptions(t *testing.T) {
	server := newHeadsServer(t, nil)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	heads, err := client.SubscribeNewHeads(ctx)
	if err != nil {
		t.Fatalf("SubscribeNewHeads: %v", err)
	}

	client.Close()

	select {
	case _, ok := <-heads:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}

	if _, err := client.SubscribeNewHeads(ctx); err == nil {
		t.Error("expected error subscribing on closed client")
	}
}

func TestHeadNumbers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heads := make(chan Head, 2)
	heads <- Head{Number: 7}
	heads <- Head{Number: 8}
	close(heads)

	var got []uint64
	for n := range HeadNumbers(ctx, heads) {
		got = append(got, n)
	}

	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("expected [7 8], got %v", got)
	}
}
