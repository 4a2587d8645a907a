// Package email adapts the Notification Coordinator's outage emails to a
// transactional email provider over plain HTTP.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lookout/monitor/internal/logging"
)

// Message is one outgoing outage notification.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider sends an outage notification email and reports whether it was
// accepted by the upstream provider.
type Provider interface {
	SendOutageEmail(ctx context.Context, msg Message) bool
}

// Config controls the HTTP provider client.
type Config struct {
	APIURL      string
	APIKey      string
	SenderEmail string
	SenderName  string
	TestMode    bool
}

// HTTPProvider posts outage emails to a Brevo-compatible transactional
// email API.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New constructs an HTTPProvider.
func New(cfg Config) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logging.WithComponent("email"),
	}
}

type sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type recipient struct {
	Email string `json:"email"`
}

type sendRequest struct {
	Sender      sender      `json:"sender"`
	To          []recipient `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
	TextContent string      `json:"textContent,omitempty"`
}

// SendOutageEmail posts msg to the provider. In test mode it only logs and
// always reports success, mirroring the original client's dry-run path.
func (p *HTTPProvider) SendOutageEmail(ctx context.Context, msg Message) bool {
	if p.cfg.TestMode {
		p.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("test mode: email not actually sent")
		return true
	}

	payload := sendRequest{
		Sender:      sender{Name: p.cfg.SenderName, Email: p.cfg.SenderEmail},
		To:          []recipient{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to marshal outage email payload")
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(data))
	if err != nil {
		p.log.Error().Err(err).Msg("failed to build outage email request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error().Err(err).Str("to", msg.To).Msg("failed to contact email provider")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		p.log.Error().Int("status", resp.StatusCode).Str("to", msg.To).Msg("email provider rejected outage notification")
		return false
	}

	p.log.Info().Str("to", msg.To).Msg("outage notification email sent")
	return true
}

// Subject builds the spec's subject line: "1 endpoint down in \"{workspace}\""
// or "N endpoints down in \"{workspace}\"".
func Subject(endpointCount int, workspace string) string {
	noun := "endpoint"
	if endpointCount != 1 {
		noun = "endpoints"
	}
	return fmt.Sprintf("%d %s down in %q", endpointCount, noun, workspace)
}
