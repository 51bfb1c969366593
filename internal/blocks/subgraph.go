package blocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultSubgraphURL is the public blocklytics Ethereum blocks subgraph.
const DefaultSubgraphURL = "https://api.thegraph.com/subgraphs/name/blocklytics/ethereum-blocks"

const blockAfterQuery = `query blockAfter($ts: BigInt!) {
  blocks(first: 1, orderBy: timestamp, orderDirection: asc, where: {timestamp_gt: $ts}) {
    id
    number
    timestamp
  }
}`

// SubgraphResolver resolves timestamps with a GraphQL blocks subgraph.
type SubgraphResolver struct {
	endpoint string
	client   *http.Client
}

// SubgraphOption configures SubgraphResolver.
type SubgraphOption func(*SubgraphResolver)

// WithSubgraphHTTPClient sets a custom http.Client.
func WithSubgraphHTTPClient(client *http.Client) SubgraphOption {
	return func(r *SubgraphResolver) {
		r.client = client
	}
}

// NewSubgraphResolver creates a resolver for endpoint. Empty endpoint uses DefaultSubgraphURL.
func NewSubgraphResolver(endpoint string, opts ...SubgraphOption) *SubgraphResolver {
	if endpoint == "" {
		endpoint = DefaultSubgraphURL
	}
	r := &SubgraphResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ Resolver          = (*SubgraphResolver)(nil)
	_ TimestampResolver = (*SubgraphResolver)(nil)
)

// Resolve resolves a date string.
func (r *SubgraphResolver) Resolve(ctx context.Context, date string) (uint64, error) {
	return resolveDate(ctx, r, date)
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type blocksResponse struct {
	Data *struct {
		Blocks []struct {
			ID        string `json:"id"`
			Number    string `json:"number"`
			Timestamp string `json:"timestamp"`
		} `json:"blocks"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// ResolveTimestamp returns the first block with a timestamp strictly after ts.
func (r *SubgraphResolver) ResolveTimestamp(ctx context.Context, ts int64) (uint64, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     blockAfterQuery,
		Variables: map[string]interface{}{"ts": strconv.FormatInt(ts, 10)},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("subgraph status %d: %s", resp.StatusCode, string(respBody))
	}

	var out blocksResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Errors) > 0 {
		return 0, fmt.Errorf("subgraph error: %s", out.Errors[0].Message)
	}
	if out.Data == nil || len(out.Data.Blocks) == 0 {
		return 0, fmt.Errorf("%w: after %d", ErrNoBlockFound, ts)
	}

	number, err := strconv.ParseUint(out.Data.Blocks[0].Number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", out.Data.Blocks[0].Number, err)
	}
	return number, nil
}
