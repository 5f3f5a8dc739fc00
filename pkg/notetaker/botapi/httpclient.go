package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPClient implements Provider against a generic Notetaker/bot HTTP
// backend (spec §6), retrying transient failures on Create with
// exponential backoff, matching the bot-create retry policy described in
// the spec and grounded on the same retry-with-jitter idiom as
// original_source/agents/chunk_extractor_node.py's `_groq_chat`.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries uint64
}

// NewHTTPClient returns an HTTPClient with sane defaults.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
	}
}

type createRequest struct {
	MeetingURL string `json:"meeting_url"`
}

type createResponse struct {
	BotID string `json:"bot_id"`
}

// Create requests a new Notetaker bot for meetingURL, retrying transient
// (network, 429, 5xx) errors up to MaxRetries times with exponential backoff.
func (c *HTTPClient) Create(ctx context.Context, meetingURL string) (string, error) {
	var botID string

	op := func() error {
		body, err := json.Marshal(createRequest{MeetingURL: meetingURL})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("botapi: marshal create request: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/bots", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("botapi: build create request: %w", err))
		}
		c.setHeaders(req)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("botapi: create request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("botapi: create returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			data, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("botapi: create rejected with status %d: %s", resp.StatusCode, string(data)))
		}

		var parsed createResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("botapi: decode create response: %w", err))
		}
		botID = parsed.BotID
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return botID, nil
}

// GetHistory returns the bot's status history.
func (c *HTTPClient) GetHistory(ctx context.Context, botID string) ([]HistoryEvent, error) {
	var events []HistoryEvent
	if err := c.getJSON(ctx, fmt.Sprintf("/bots/%s/history", botID), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetMediaLinks returns downloadable media for the bot's run.
func (c *HTTPClient) GetMediaLinks(ctx context.Context, botID string) ([]MediaLink, error) {
	var links []MediaLink
	if err := c.getJSON(ctx, fmt.Sprintf("/bots/%s/media", botID), &links); err != nil {
		return nil, err
	}
	return links, nil
}

// FetchTranscript downloads the raw content behind a MediaLink.
func (c *HTTPClient) FetchTranscript(ctx context.Context, link MediaLink) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("botapi: build fetch request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("botapi: fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("botapi: fetch transcript: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("botapi: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("botapi: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("botapi: request %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}
