package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
)

// Config carries the recognised client options.
type Config struct {
	// EndpointURL is the destination for chat webhook calls.
	EndpointURL string
	// Timeout is an optional caller-imposed bound on one exchange. Zero waits
	// for as long as the transport does.
	Timeout time.Duration
}

// Client posts user messages to the chatbot webhook. It never retries and
// keeps no state between calls; callers serialise their own sends.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient builds a Client. An empty endpoint yields a client whose every
// call fails with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	rc := resty.New().SetRetryCount(0)
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	return &Client{cfg: cfg, http: rc}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.cfg.EndpointURL != ""
}

// SendMessage performs one exchange. The reply is decoded as-is; its echoed
// session id is not compared to sessionID.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (chat.InboundMessage, error) {
	if !c.Configured() {
		return chat.InboundMessage{}, ErrNotConfigured
	}

	body := chat.OutboundMessage{
		SessionID: sessionID,
		Message:   text,
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.cfg.EndpointURL)
	if err != nil {
		return chat.InboundMessage{}, &TransportError{Err: err}
	}

	if !res.IsSuccess() {
		return chat.InboundMessage{}, &HTTPError{StatusCode: res.StatusCode()}
	}

	var reply chat.InboundMessage
	if err := json.Unmarshal(res.Body(), &reply); err != nil {
		return chat.InboundMessage{}, &ParseError{Err: err}
	}
	return reply, nil
}
