// Package mailrelay is a small client for the outbound mail relay HTTP API.
package mailrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client posts messages to the relay's /v1/messages endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// SendOption configures Send behavior.
type SendOption func(*sendOptions)

type sendOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey sets the Idempotency-Key header so the relay drops
// redeliveries of the same message.
func WithIdempotencyKey(key string) SendOption {
	return func(opts *sendOptions) {
		opts.idempotencyKey = strings.TrimSpace(key)
	}
}

// Message is the relay request body.
type Message struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

// Error is the relay error body.
type Error struct {
	Message *string `json:"message,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// NewClient instantiates the relay client with sane defaults.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("mail relay base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// Send submits msg to the relay.
func (c *Client) Send(ctx context.Context, msg Message, optFns ...SendOption) error {
	if c == nil || c.httpClient == nil {
		return errors.New("mail relay client not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail recipient is required")
	}
	var opts sendOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", opts.idempotencyKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call mail relay: %w", err)
	}
	defer resp.Body.Close()

	switch status := resp.StatusCode; {
	case status == http.StatusOK || status == http.StatusAccepted:
		return nil
	case status == http.StatusConflict:
		// the relay already accepted a message with this idempotency key
		return nil
	case status >= http.StatusBadRequest:
		return fmt.Errorf("mail relay error: %s", errorMessage(resp.Body, resp.Status))
	default:
		return fmt.Errorf("mail relay unexpected status: %s", resp.Status)
	}
}

func errorMessage(r io.Reader, fallback string) string {
	var body Error
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return fallback
	}
	if body.Message != nil {
		if msg := strings.TrimSpace(*body.Message); msg != "" {
			return msg
		}
	}
	if body.Status != nil {
		if msg := strings.TrimSpace(*body.Status); msg != "" {
			return msg
		}
	}
	return fallback
}
