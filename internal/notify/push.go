// Package notify delivers terminal-state messages to the requester through
// an external messaging channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tsudo/taskrelay/pkg/api"
)

// DefaultEndpoint is the messaging channel's push-message operation.
const DefaultEndpoint = "https://api.line.me/v2/bot/message/push"

// PushClient delivers messages through a LINE-style "push message to user id"
// HTTP API. The channel access token is injected at construction and reused
// for every call; it is never re-read from configuration per delivery.
type PushClient struct {
	endpoint string
	token    string
	httpc    *http.Client
}

// Ensure PushClient implements api.Notifier.
var _ api.Notifier = (*PushClient)(nil)

// NewPushClient creates a client for the given endpoint and channel access
// token. An empty endpoint means DefaultEndpoint.
func NewPushClient(endpoint, token string) *PushClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &PushClient{
		endpoint: endpoint,
		token:    token,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Deliver pushes msg as a text message to the channel user identified by
// recipient.
func (c *PushClient) Deliver(ctx context.Context, recipient string, msg api.Message) error {
	body, err := json.Marshal(pushRequest{
		To:       recipient,
		Messages: []textMessage{{Type: "text", Text: msg.Text}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push message to %s: status %d: %s", recipient, resp.StatusCode, detail)
	}

	return nil
}
