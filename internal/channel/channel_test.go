package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/pkg/models"
)

type fakeCall struct {
	name     string
	err      error
	panics   bool
	degraded bool
	calls    []string
}

func (f *fakeCall) Name() string { return f.name }

func (f *fakeCall) PlaceCall(_ context.Context, number string) error {
	if f.panics {
		panic("boom")
	}
	f.calls = append(f.calls, number)
	return f.err
}

func (f *fakeCall) Degraded() bool { return f.degraded }

type fakeSMS struct {
	name   string
	err    error
	panics bool
	sent   []string
	bodies []string
}

func (f *fakeSMS) Name() string { return f.name }

func (f *fakeSMS) SendSMS(_ context.Context, number, body string) error {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, number)
	f.bodies = append(f.bodies, body)
	return nil
}

func noSleep(c *Channel) { c.SetSleep(func(time.Duration) {}) }

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+919876543210", NormalizePhone("+91 98765-43210"))
	assert.Equal(t, "100", NormalizePhone("100"))
	assert.Equal(t, "18005551234", NormalizePhone("1 (800) 555-1234"))
	assert.Equal(t, "", NormalizePhone("+"))
	assert.Equal(t, "", NormalizePhone("abc"))
	assert.Equal(t, "911", NormalizePhone("9+1+1"))
}

func TestCleanDigits(t *testing.T) {
	assert.Equal(t, "919876543210", CleanDigits("+91 98765 43210"))
	assert.Equal(t, "100", CleanDigits("100"))
	assert.Equal(t, "", CleanDigits("++--"))
}

func TestPlaceCallFirstSuccessWins(t *testing.T) {
	first := &fakeCall{name: "first"}
	second := &fakeCall{name: "second"}
	c := New([]CallMechanism{first, second}, nil, 0, 0)
	noSleep(c)

	result := c.PlaceCall(context.Background(), models.SOSContact{Name: "Mom", Phone: "+1 (555) 010-2030"})

	require.True(t, result.Success)
	assert.Equal(t, "first", result.Mechanism)
	assert.Equal(t, []string{"+15550102030"}, first.calls)
	assert.Empty(t, second.calls)
}

func TestPlaceCallFallsThroughFailures(t *testing.T) {
	broken := &fakeCall{name: "broken", err: errors.New("carrier down")}
	panicky := &fakeCall{name: "panicky", panics: true}
	working := &fakeCall{name: "working", degraded: true}
	c := New([]CallMechanism{broken, panicky, working}, nil, 0, 0)
	noSleep(c)

	result := c.PlaceCall(context.Background(), models.SOSContact{Phone: "100"})

	require.True(t, result.Success)
	assert.True(t, result.Degraded)
	assert.Equal(t, "working", result.Mechanism)
}

func TestPlaceCallExhaustionIsResultNotPanic(t *testing.T) {
	c := New([]CallMechanism{
		&fakeCall{name: "a", err: errors.New("no service")},
		NoopCall{},
	}, nil, 0, 0)
	noSleep(c)

	result := c.PlaceCall(context.Background(), models.SOSContact{Phone: "555"})

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, ErrNotConfigured)
	assert.NotEmpty(t, result.ErrText)
}

func TestPlaceCallRejectsUnusableNumber(t *testing.T) {
	m := &fakeCall{name: "m"}
	c := New([]CallMechanism{m}, nil, 0, 0)
	noSleep(c)

	result := c.PlaceCall(context.Background(), models.SOSContact{Name: "Empty", Phone: "---"})

	assert.False(t, result.Success)
	assert.Empty(t, m.calls)
}

func TestSendSMSCascadeOrder(t *testing.T) {
	down := &fakeSMS{name: "down", err: errors.New("gateway 500")}
	prompts := NewPromptLog(10)
	c := New(nil, []SMSMechanism{down, NewManualPromptSMS(prompts)}, 0, 0)
	noSleep(c)

	result := c.SendSMS(context.Background(), models.SOSContact{Phone: "98765"}, "help")

	require.True(t, result.Success)
	assert.True(t, result.Degraded)
	assert.Equal(t, "manual-prompt", result.Mechanism)

	recent := prompts.Recent(5)
	require.Len(t, recent, 1)
	assert.Equal(t, "98765", recent[0].Number)
	assert.Equal(t, "help", recent[0].Body)
}

func TestCallContactsDelaysAfterSuccessOnly(t *testing.T) {
	var slept []time.Duration
	working := &fakeCall{name: "working"}
	c := New([]CallMechanism{working}, nil, 2*time.Second, 0)
	c.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	contacts := []models.SOSContact{
		{Name: "A", Phone: "111"},
		{Name: "B", Phone: "222"},
		{Name: "C", Phone: "333"},
	}
	results := c.CallContacts(context.Background(), contacts)

	require.Len(t, results, 3)
	// No pause after the final call.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestCallContactsNoDelayAfterFailure(t *testing.T) {
	var slept int
	failing := &fakeCall{name: "failing", err: errors.New("nope")}
	c := New([]CallMechanism{failing}, nil, 2*time.Second, 0)
	c.SetSleep(func(time.Duration) { slept++ })

	c.CallContacts(context.Background(), []models.SOSContact{
		{Phone: "111"}, {Phone: "222"},
	})

	assert.Zero(t, slept)
}

func TestSendSMSToContactsDelaysBetweenEverySend(t *testing.T) {
	var slept []time.Duration
	sms := &fakeSMS{name: "sms"}
	c := New(nil, []SMSMechanism{sms}, 0, 500*time.Millisecond)
	c.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	results := c.SendSMSToContacts(context.Background(), []models.SOSContact{
		{Phone: "111"}, {Phone: "222"}, {Phone: "333"},
	}, "emergency")

	require.Len(t, results, 3)
	assert.Equal(t, []string{"111", "222", "333"}, sms.sent)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestPromptLogTrimsToMax(t *testing.T) {
	p := NewPromptLog(3)
	p.Add("1", "a")
	p.Add("2", "b")
	p.Add("3", "c")
	p.Add("4", "d")

	recent := p.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Number)
	assert.Equal(t, "4", recent[2].Number)
}
