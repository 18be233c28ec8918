package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MailerClient posts template e-mails to the mail gateway:
// POST <baseURL>/email/<template> with a JSON body.
type MailerClient struct {
	baseURL    string
	httpClient *http.Client
}

// MailerConfig holds mail gateway client settings.
type MailerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DeliveryError reports a non-200 answer from the mail gateway.
type DeliveryError struct {
	Template   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail gateway returned %d for %s: %s", e.StatusCode, e.Template, e.Body)
}

// NewMailerClient creates a mail gateway client.
func NewMailerClient(cfg MailerConfig) *MailerClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &MailerClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts body to the template endpoint. Only HTTP 200 counts as delivered.
func (c *MailerClient) Send(ctx context.Context, template string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal mail body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email/"+template, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", template, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DeliveryError{Template: template, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
