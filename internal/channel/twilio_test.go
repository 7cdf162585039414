package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioSMSRequestShape(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := NewTwilioSMS("AC123", "secret", "+15550001111")
	sms.SetBaseURL(srv.URL)

	err := sms.SendSMS(context.Background(), "+919876543210", "EMERGENCY! I need help.")

	require.NoError(t, err)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "+919876543210", gotTo)
	assert.Equal(t, "+15550001111", gotFrom)
	assert.Equal(t, "EMERGENCY! I need help.", gotBody)
}

func TestTwilioVoiceRequestShape(t *testing.T) {
	var gotPath, gotTwiml string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotTwiml = r.PostFormValue("Twiml")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	voice := NewTwilioVoice("AC123", "secret", "+15550001111", "Help is needed")
	voice.SetBaseURL(srv.URL)

	err := voice.PlaceCall(context.Background(), "100")

	require.NoError(t, err)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", gotPath)
	assert.Contains(t, gotTwiml, "<Say loop=\"2\">Help is needed</Say>")
}

func TestTwilioErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code": 20003, "message": "Authenticate"}`))
	}))
	defer srv.Close()

	sms := NewTwilioSMS("AC123", "wrong", "+15550001111")
	sms.SetBaseURL(srv.URL)

	err := sms.SendSMS(context.Background(), "+123", "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "20003")
}
