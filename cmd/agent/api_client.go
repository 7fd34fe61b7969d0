// api_client.go is the thin HTTP client the chat and status commands use to
// talk to a running server.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// apiClient talks to the gateway's HTTP surface.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: message streams are open-ended.
		client: &http.Client{},
	}
}

// Health fetches /health and returns the raw body.
func (c *apiClient) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health check returned %d: %s", resp.StatusCode, body)
	}
	return strings.TrimSpace(string(body)), nil
}

// CreateChannel opens (or idempotently resumes) a channel.
func (c *apiClient) CreateChannel(ctx context.Context, channelID string, channelType models.ChannelType, agentID string) error {
	payload, err := json.Marshal(map[string]string{
		"channelType": string(channelType),
		"agentId":     agentID,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/channels/%s/create", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("create channel returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// History fetches the channel's turn records.
func (c *apiClient) History(ctx context.Context, channelID string) ([]*models.TurnRecord, error) {
	url := fmt.Sprintf("%s/channels/%s/history", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("history returned %d: %s", resp.StatusCode, body)
	}
	var turns []*models.TurnRecord
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return turns, nil
}

// StreamMessage posts one message and invokes fn for each SSE-framed turn
// event until the stream ends or fn returns an error.
func (c *apiClient) StreamMessage(ctx context.Context, channelID, content string, fn func(models.TurnEvent) error) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message returned %d: %s", resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var event models.TurnEvent
			if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			if err := fn(event); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// waitHealthy polls /health until the server answers or the deadline passes.
func (c *apiClient) waitHealthy(ctx context.Context, deadline time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	for {
		if _, err := c.Health(waitCtx); err == nil {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("server not reachable at %s", c.baseURL)
		case <-time.After(200 * time.Millisecond):
		}
	}
}
