package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sentinel/pkg/models"
)

// ErrNotConfigured is returned by the null-object mechanisms installed when
// a capability has no backing configuration. The cascade treats it like any
// other failure and falls through.
var ErrNotConfigured = errors.New("mechanism not configured")

// CallMechanism places a phone call to a normalized number.
type CallMechanism interface {
	Name() string
	PlaceCall(ctx context.Context, number string) error
}

// SMSMechanism delivers a text message to a normalized number.
type SMSMechanism interface {
	Name() string
	SendSMS(ctx context.Context, number, body string) error
}

// degradable is implemented by mechanisms that only present the action to
// the user (dialer/composer intents, manual prompts) instead of completing
// it. They count as success for reporting, flagged as degraded.
type degradable interface {
	Degraded() bool
}

type SendResult struct {
	Success   bool               `json:"success"`
	Degraded  bool               `json:"degraded,omitempty"`
	Contact   models.SOSContact  `json:"contact"`
	Mechanism string             `json:"mechanism,omitempty"`
	Err       error              `json:"-"`
	ErrText   string             `json:"error,omitempty"`
}

// Channel runs the per-contact mechanism cascades: first success wins, every
// failure falls through, only full exhaustion is reported as failure — and
// even then as a result value, never a panic.
type Channel struct {
	calls     []CallMechanism
	sms       []SMSMechanism
	callDelay time.Duration
	smsDelay  time.Duration
	sleep     func(time.Duration)
}

func New(calls []CallMechanism, sms []SMSMechanism, callDelay, smsDelay time.Duration) *Channel {
	return &Channel{
		calls:     calls,
		sms:       sms,
		callDelay: callDelay,
		smsDelay:  smsDelay,
		sleep:     time.Sleep,
	}
}

// SetSleep replaces the inter-action delay function. Used by tests.
func (c *Channel) SetSleep(fn func(time.Duration)) {
	c.sleep = fn
}

// PlaceCall walks the call cascade for a single contact.
func (c *Channel) PlaceCall(ctx context.Context, contact models.SOSContact) SendResult {
	number := NormalizePhone(contact.Phone)
	if number == "" {
		err := fmt.Errorf("contact %q has no usable number", contact.Name)
		return SendResult{Contact: contact, Err: err, ErrText: err.Error()}
	}

	var lastErr error
	for _, m := range c.calls {
		if err := safePlaceCall(ctx, m, number); err != nil {
			log.Printf("⚠️  Call mechanism '%s' failed for %s: %v", m.Name(), number, err)
			lastErr = err
			continue
		}

		log.Printf("📞 Call placed to %s via '%s'", number, m.Name())
		return SendResult{
			Success:   true,
			Degraded:  isDegraded(m),
			Contact:   contact,
			Mechanism: m.Name(),
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no call mechanisms available")
	}
	return SendResult{Contact: contact, Err: lastErr, ErrText: lastErr.Error()}
}

// SendSMS walks the SMS cascade for a single contact.
func (c *Channel) SendSMS(ctx context.Context, contact models.SOSContact, body string) SendResult {
	number := NormalizePhone(contact.Phone)
	if number == "" {
		err := fmt.Errorf("contact %q has no usable number", contact.Name)
		return SendResult{Contact: contact, Err: err, ErrText: err.Error()}
	}

	var lastErr error
	for _, m := range c.sms {
		if err := safeSendSMS(ctx, m, number, body); err != nil {
			log.Printf("⚠️  SMS mechanism '%s' failed for %s: %v", m.Name(), number, err)
			lastErr = err
			continue
		}

		log.Printf("💬 SMS delivered to %s via '%s'", number, m.Name())
		return SendResult{
			Success:   true,
			Degraded:  isDegraded(m),
			Contact:   contact,
			Mechanism: m.Name(),
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no SMS mechanisms available")
	}
	return SendResult{Contact: contact, Err: lastErr, ErrText: lastErr.Error()}
}

// CallContacts places calls sequentially, pausing after each successful call
// so the far end is not flooded.
func (c *Channel) CallContacts(ctx context.Context, contacts []models.SOSContact) []SendResult {
	results := make([]SendResult, 0, len(contacts))
	for i, contact := range contacts {
		result := c.PlaceCall(ctx, contact)
		results = append(results, result)

		if result.Success && i < len(contacts)-1 {
			c.sleep(c.callDelay)
		}
	}
	return results
}

// SendSMSToContacts fans a message out sequentially with a short pause
// after every send.
func (c *Channel) SendSMSToContacts(ctx context.Context, contacts []models.SOSContact, body string) []SendResult {
	results := make([]SendResult, 0, len(contacts))
	for i, contact := range contacts {
		results = append(results, c.SendSMS(ctx, contact, body))

		if i < len(contacts)-1 {
			c.sleep(c.smsDelay)
		}
	}
	return results
}

// safePlaceCall converts a panicking mechanism into an error so the cascade
// keeps moving.
func safePlaceCall(ctx context.Context, m CallMechanism, number string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("call mechanism '%s' panicked: %v", m.Name(), r)
		}
	}()
	return m.PlaceCall(ctx, number)
}

func safeSendSMS(ctx context.Context, m SMSMechanism, number, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("SMS mechanism '%s' panicked: %v", m.Name(), r)
		}
	}()
	return m.SendSMS(ctx, number, body)
}

func isDegraded(m interface{}) bool {
	if d, ok := m.(degradable); ok {
		return d.Degraded()
	}
	return false
}

// NormalizePhone strips everything except digits and a leading '+'.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if normalized == "+" {
		return ""
	}
	return normalized
}

// CleanDigits keeps digits only. Used to compare against the helpline
// denylist.
func CleanDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
