package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func subgraphServer(t *testing.T, handle func(ts string) interface{}) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		ts, _ := req.Variables["ts"].(string)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(handle(ts))
	}))
}

func TestSubgraphResolver_Resolve(t *testing.T) {
	var gotTs string
	server := subgraphServer(t, func(ts string) interface{} {
		gotTs = ts
		return map[string]interface{}{
			"data": map[string]interface{}{
				"blocks": []map[string]interface{}{
					{"id": "0xabc", "number": "13533070", "timestamp": "1635803102"},
				},
			},
		}
	})
	defer server.Close()

	r := NewSubgraphResolver(server.URL)

	block, err := r.Resolve(context.Background(), "20211101T2145")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if block != 13533070 {
		t.Errorf("expected block 13533070, got %d", block)
	}
	if gotTs != "1635803100" {
		t.Errorf("expected ts 1635803100, got %s", gotTs)
	}
}

func TestSubgraphResolver_NoBlock(t *testing.T) {
	server := subgraphServer(t, func(string) interface{} {
		return map[string]interface{}{
			"data": map[string]interface{}{"blocks": []interface{}{}},
		}
	})
	defer server.Close()

	_, err := NewSubgraphResolver(server.URL).ResolveTimestamp(context.Background(), 4102444800)
	if !errors.Is(err, ErrNoBlockFound) {
		t.Fatalf("expected ErrNoBlockFound, got %v", err)
	}
}

func TestSubgraphResolver_GraphQLError(t *testing.T) {
	server := subgraphServer(t, func(string) interface{} {
		return map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "indexing error"}},
		}
	})
	defer server.Close()

	_, err := NewSubgraphResolver(server.URL).ResolveTimestamp(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNoBlockFound) {
		t.Errorf("graphql error must not be reported as ErrNoBlockFound")
	}
}

func TestSubgraphResolver_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewSubgraphResolver(server.URL).ResolveTimestamp(context.Background(), 1); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestSubgraphResolver_InvalidDate(t *testing.T) {
	r := NewSubgraphResolver("http://127.0.0.1:0")
	if _, err := r.Resolve(context.Background(), "garbage"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
