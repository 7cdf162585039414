package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// IntentPusher delivers data-only pushes to a device. Satisfied by
// push.FirebaseService.
type IntentPusher interface {
	SendIntentPush(ctx context.Context, token string, data map[string]string) error
}

// TokenSource returns the current device token of the triggering session,
// or "" when none is registered.
type TokenSource func() string

// HTTPGatewaySMS posts the message to a generic JSON SMS gateway. Second
// mechanism in the SMS cascade.
type HTTPGatewaySMS struct {
	url  string
	http *http.Client
}

func NewHTTPGatewaySMS(gatewayURL string) *HTTPGatewaySMS {
	return &HTTPGatewaySMS{
		url:  gatewayURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *HTTPGatewaySMS) Name() string { return "http-gateway" }

func (g *HTTPGatewaySMS) SendSMS(ctx context.Context, number, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      number,
		"message": body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// DialIntentPush asks the triggering device to open its dialer pre-filled
// with the number. Degraded: the user still has to press call, but the
// number is presented.
type DialIntentPush struct {
	push  IntentPusher
	token TokenSource
}

func NewDialIntentPush(push IntentPusher, token TokenSource) *DialIntentPush {
	return &DialIntentPush{push: push, token: token}
}

func (d *DialIntentPush) Name() string   { return "dial-intent" }
func (d *DialIntentPush) Degraded() bool { return true }

func (d *DialIntentPush) PlaceCall(ctx context.Context, number string) error {
	token := d.token()
	if token == "" {
		return fmt.Errorf("no device token registered for dial intent")
	}
	return d.push.SendIntentPush(ctx, token, map[string]string{
		"type":   "dial_intent",
		"action": "OPEN_DIALER",
		"number": number,
	})
}

// ComposeIntentPush asks the triggering device to open its SMS composer
// pre-filled with recipient and body. Degraded.
type ComposeIntentPush struct {
	push  IntentPusher
	token TokenSource
}

func NewComposeIntentPush(push IntentPusher, token TokenSource) *ComposeIntentPush {
	return &ComposeIntentPush{push: push, token: token}
}

func (c *ComposeIntentPush) Name() string   { return "compose-intent" }
func (c *ComposeIntentPush) Degraded() bool { return true }

func (c *ComposeIntentPush) SendSMS(ctx context.Context, number, body string) error {
	token := c.token()
	if token == "" {
		return fmt.Errorf("no device token registered for compose intent")
	}
	return c.push.SendIntentPush(ctx, token, map[string]string{
		"type":   "sms_intent",
		"action": "OPEN_SMS_COMPOSER",
		"number": number,
		"body":   body,
	})
}

// Prompt is a manual-send instruction surfaced to the user when every
// delivery mechanism failed: the literal message and target number, with a
// copy affordance on the device side.
type Prompt struct {
	Number string    `json:"number"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

// PromptLog keeps the most recent manual-send prompts for the device to
// collect.
type PromptLog struct {
	mu      sync.Mutex
	prompts []Prompt
	max     int
}

func NewPromptLog(max int) *PromptLog {
	if max <= 0 {
		max = 50
	}
	return &PromptLog{max: max}
}

func (p *PromptLog) Add(number, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, Prompt{Number: number, Body: body, At: time.Now()})
	if len(p.prompts) > p.max {
		p.prompts = p.prompts[len(p.prompts)-p.max:]
	}
}

func (p *PromptLog) Recent(limit int) []Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limit <= 0 || limit > len(p.prompts) {
		limit = len(p.prompts)
	}
	out := make([]Prompt, limit)
	copy(out, p.prompts[len(p.prompts)-limit:])
	return out
}

// ManualPromptSMS is the terminal SMS fallback: it records a prompt carrying
// the literal message and number for the user to send by hand. Always
// succeeds, always degraded.
type ManualPromptSMS struct {
	log *PromptLog
}

func NewManualPromptSMS(log *PromptLog) *ManualPromptSMS {
	return &ManualPromptSMS{log: log}
}

func (m *ManualPromptSMS) Name() string   { return "manual-prompt" }
func (m *ManualPromptSMS) Degraded() bool { return true }

func (m *ManualPromptSMS) SendSMS(_ context.Context, number, body string) error {
	m.log.Add(number, body)
	return nil
}

// NoopCall is the null-object call mechanism installed when a capability has
// no configuration. It fails cleanly so the cascade moves on.
type NoopCall struct{}

func (NoopCall) Name() string { return "noop-call" }

func (NoopCall) PlaceCall(context.Context, string) error { return ErrNotConfigured }

// NoopSMS is the null-object SMS mechanism.
type NoopSMS struct{}

func (NoopSMS) Name() string { return "noop-sms" }

func (NoopSMS) SendSMS(context.Context, string, string) error { return ErrNotConfigured }
