package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com"

// twilioClient holds the shared REST plumbing for the voice and SMS
// mechanisms. Requests are form-encoded against the 2010-04-01 API.
type twilioClient struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	http       *http.Client
}

func newTwilioClient(accountSID, authToken, from string) *twilioClient {
	return &twilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioBaseURL,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *twilioClient) post(ctx context.Context, resource string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json", t.baseURL, t.accountSID, resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build Twilio request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("Twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Twilio %s returned %d: %s", resource, resp.StatusCode, string(body))
	}

	return nil
}

// TwilioVoice places an automated outbound call that speaks the emergency
// announcement. First mechanism in the call cascade.
type TwilioVoice struct {
	client       *twilioClient
	announcement string
}

func NewTwilioVoice(accountSID, authToken, from, announcement string) *TwilioVoice {
	if announcement == "" {
		announcement = "This is an automated emergency call. The sender needs help immediately. Please respond."
	}
	return &TwilioVoice{
		client:       newTwilioClient(accountSID, authToken, from),
		announcement: announcement,
	}
}

func (t *TwilioVoice) Name() string { return "twilio-voice" }

func (t *TwilioVoice) PlaceCall(ctx context.Context, number string) error {
	form := url.Values{}
	form.Set("To", number)
	form.Set("From", t.client.from)
	form.Set("Twiml", fmt.Sprintf("<Response><Say loop=\"2\">%s</Say></Response>", t.announcement))

	return t.client.post(ctx, "Calls", form)
}

// SetBaseURL points the mechanism at a different API host. Used by tests.
func (t *TwilioVoice) SetBaseURL(base string) { t.client.baseURL = base }

// TwilioSMS sends the message through the Twilio Messages resource. First
// mechanism in the SMS cascade.
type TwilioSMS struct {
	client *twilioClient
}

func NewTwilioSMS(accountSID, authToken, from string) *TwilioSMS {
	return &TwilioSMS{client: newTwilioClient(accountSID, authToken, from)}
}

func (t *TwilioSMS) Name() string { return "twilio-sms" }

func (t *TwilioSMS) SendSMS(ctx context.Context, number, body string) error {
	form := url.Values{}
	form.Set("To", number)
	form.Set("From", t.client.from)
	form.Set("Body", body)

	return t.client.post(ctx, "Messages", form)
}

func (t *TwilioSMS) SetBaseURL(base string) { t.client.baseURL = base }
