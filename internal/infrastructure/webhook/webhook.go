// Package webhook posts release announcements to Slack incoming webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	rperrors "github.com/relicta-tech/ci-tools/internal/errors"
	"github.com/relicta-tech/ci-tools/internal/infrastructure/resilience"
)

// Config configures a Slack webhook.
type Config struct {
	URL        string
	Channel    string
	Username   string
	IconEmoji  string
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c *Config) retryCount() int {
	if c.RetryCount == 0 {
		return 3
	}
	return c.RetryCount
}

func (c *Config) retryDelay() time.Duration {
	if c.RetryDelay == 0 {
		return time.Second
	}
	return c.RetryDelay
}

// Field is a short key/value pair shown below the message.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Attachment is a legacy Slack message attachment.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Message is the JSON body of a Slack webhook request.
type Message struct {
	Text        string       `json:"text"`
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Notifier sends messages to one Slack webhook.
type Notifier struct {
	cfg    Config
	client *http.Client
	policy *resilience.Policy
}

// NewNotifier validates cfg and creates a notifier.
func NewNotifier(cfg Config) (*Notifier, error) {
	const op = "webhook.NewNotifier"

	if cfg.URL == "" {
		return nil, rperrors.Config(op, "the slack webhook must be provided via SLACK_WEBHOOK or slack.webhook")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, rperrors.Config(op, "the slack webhook is not a valid http(s) URL")
	}

	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.timeout()},
		policy: resilience.New("slack", resilience.Config{
			RetryAttempts:    cfg.retryCount() + 1,
			RetryInitialWait: cfg.retryDelay(),
			RetryMaxWait:     cfg.retryDelay() * 4,
		}),
	}, nil
}

// Send posts text, adding the configured channel, username and icon.
func (n *Notifier) Send(ctx context.Context, text string, attachments ...Attachment) error {
	return n.SendMessage(ctx, Message{
		Text:        text,
		Channel:     n.cfg.Channel,
		Username:    n.cfg.Username,
		IconEmoji:   n.cfg.IconEmoji,
		Attachments: attachments,
	})
}

// SendMessage posts msg, retrying server errors.
func (n *Notifier) SendMessage(ctx context.Context, msg Message) error {
	const op = "webhook.Send"

	body, err := json.Marshal(msg)
	if err != nil {
		return rperrors.InternalWrap(err, op, "failed to marshal message")
	}

	err = resilience.Run(ctx, n.policy, func(ctx context.Context) error {
		return n.send(ctx, body)
	})
	if err != nil {
		return rperrors.WrapSafe(err, rperrors.KindNetwork, op, "failed to post slack message")
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return rperrors.Validation("webhook.Send", fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ci_tools")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
