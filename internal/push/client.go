// Package push is a thin client for the Expo push HTTP API. One POST per
// batch, bounded timeout, no internal retries: a failed batch is the
// caller's problem to log and drop, chat history remains the source of
// truth.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

const (
	DefaultEndpoint  = "https://exp.host/--/api/v2/push/send"
	DefaultBatchSize = 100

	StatusOK    = "ok"
	StatusError = "error"

	// ErrDeviceNotRegistered is the provider's permanent failure code: the
	// token will never deliver again and should be retired.
	ErrDeviceNotRegistered = "DeviceNotRegistered"
)

var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\[\]]+\]$`)

// IsValidToken reports whether s matches the provider's token grammar.
func IsValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

type Notification struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// Ticket is the provider's per-token acknowledgment of an attempted
// notification. The token is echoed back so callers can correlate.
type Ticket struct {
	ID      string         `json:"id,omitempty"`
	Token   string         `json:"token,omitempty"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// PermanentFailure reports whether the ticket says the token is dead for
// good, as opposed to a transient provider hiccup.
func (t Ticket) PermanentFailure() bool {
	return t.Status == StatusError && t.Details != nil && t.Details.Error == ErrDeviceNotRegistered
}

type Client struct {
	endpoint string
	batch    int
	httpc    *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		batch:    DefaultBatchSize,
		httpc:    &http.Client{Timeout: timeout},
	}
}

// BatchSize is the provider's per-request message cap.
func (c *Client) BatchSize() int { return c.batch }

type sendResponse struct {
	Data []Ticket `json:"data"`
}

// Send submits one batch and returns its tickets, in the provider's order.
func (c *Client) Send(ctx context.Context, batch []Notification) ([]Ticket, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if len(batch) > c.batch {
		return nil, fmt.Errorf("push: batch of %d exceeds provider limit %d", len(batch), c.batch)
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("push: provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("push: decode response: %w", err)
	}
	return decoded.Data, nil
}
