// Package backend is the HTTP client for the GAIA API surface this daemon
// consumes: the paginated conversation list and the batch-sync endpoint. The
// wire contract is owned by the backend; this package only maps it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Client talks to the GAIA backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
}

// NewClient creates a backend client. timeout <= 0 selects the default.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		log:        log.With().Str("component", "backend").Logger(),
	}
}

// ListConversations fetches one page of conversation summaries, most recent
// first.
func (c *Client) ListConversations(ctx context.Context, page, limit int) ([]ConversationSummary, error) {
	var resp listConversationsResponse
	url := fmt.Sprintf("%s/conversations?page=%d&limit=%d", c.baseURL, page, limit)
	if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return resp.Conversations, nil
}

// BatchSync fetches full conversation and message payloads for exactly the
// requested IDs.
func (c *Client) BatchSync(ctx context.Context, items []BatchSyncItem) ([]SyncedConversation, error) {
	var resp batchSyncResponse
	url := c.baseURL + "/conversations/batch-sync"
	if err := c.do(ctx, http.MethodPost, url, batchSyncRequest{Conversations: items}, &resp); err != nil {
		return nil, fmt.Errorf("failed to batch-sync conversations: %w", err)
	}
	return resp.Conversations, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
