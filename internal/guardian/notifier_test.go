package guardian

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/push"
	"sentinel/pkg/models"
)

type stubStore struct {
	user      *models.User
	userErr   error
	guardians []*models.User
	queryErr  error
	queried   [][]string
}

func (s *stubStore) GetUser(context.Context, string) (*models.User, error) {
	return s.user, s.userErr
}

func (s *stubStore) QueryUsersByEmails(_ context.Context, emails []string) ([]*models.User, error) {
	s.queried = append(s.queried, emails)
	return s.guardians, s.queryErr
}

type stubPusher struct {
	fail   bool
	tokens []string
	body   string
}

func (s *stubPusher) SendSOSNotification(_ context.Context, tokens []string, _, _, body string) []*push.AlertResult {
	s.tokens = tokens
	s.body = body
	results := make([]*push.AlertResult, 0, len(tokens))
	for _, tok := range tokens {
		r := &push.AlertResult{Token: tok, Success: !s.fail}
		if s.fail {
			r.Error = errors.New("delivery failed")
		}
		results = append(results, r)
	}
	return results
}

type stubMailer struct {
	sent     []string
	resolved []string
	err      error
}

func (s *stubMailer) SendEmergencyAlert(to, _, _, _, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *stubMailer) SendResolvedNotice(to, _, _, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.resolved = append(s.resolved, to)
	return nil
}

func activeAlert() *models.EmergencyAlert {
	return &models.EmergencyAlert{
		ID:       "alert-1",
		Status:   models.AlertStatusActive,
		Location: models.Location{Latitude: 12.9716, Longitude: 77.5946},
	}
}

func TestNotifySkipsOfflineUser(t *testing.T) {
	store := &stubStore{}
	n := NewNotifier(store, &stubPusher{}, nil, nil, false)

	sent, err := n.NotifyGuardians(context.Background(), models.OfflineUserID, activeAlert())

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, store.queried)
}

func TestNotifySkipsWhenUserUnavailable(t *testing.T) {
	store := &stubStore{userErr: errors.New("not found")}
	n := NewNotifier(store, &stubPusher{}, nil, nil, false)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestNotifySkipsWhenNoGuardiansConfigured(t *testing.T) {
	store := &stubStore{user: &models.User{ID: "user-1", Name: "Asha"}}
	n := NewNotifier(store, &stubPusher{}, nil, nil, false)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, store.queried)
}

func TestNotifyResolvesEmailsToTokens(t *testing.T) {
	store := &stubStore{
		user: &models.User{
			ID:             "user-1",
			Name:           "Asha",
			GuardianEmails: []string{"g1@example.com", "g2@example.com"},
		},
		guardians: []*models.User{
			{Email: "g1@example.com", FCMToken: "tok-1"},
			{Email: "g2@example.com", FCMToken: "tok-2"},
			{Email: "g3@example.com"}, // no device registered
		},
	}
	pusher := &stubPusher{}
	n := NewNotifier(store, pusher, nil, nil, false)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"tok-1", "tok-2"}, pusher.tokens)
	require.Len(t, store.queried, 1)
	assert.Equal(t, []string{"g1@example.com", "g2@example.com"}, store.queried[0])
}

func TestNotifyDefaultBodyNamesUser(t *testing.T) {
	store := &stubStore{
		user: &models.User{ID: "user-1", Name: "Asha", GuardianEmails: []string{"g@example.com"}},
		guardians: []*models.User{
			{Email: "g@example.com", FCMToken: "tok-1"},
		},
	}
	pusher := &stubPusher{}
	n := NewNotifier(store, pusher, nil, nil, false)

	_, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Contains(t, pusher.body, "Asha")
}

func TestNotifyEmailsWhenNoTokensResolved(t *testing.T) {
	store := &stubStore{
		user: &models.User{ID: "user-1", GuardianEmails: []string{"g@example.com"}},
		guardians: []*models.User{
			{Email: "g@example.com", Name: "Guardian"},
		},
	}
	mailer := &stubMailer{}
	n := NewNotifier(store, &stubPusher{}, mailer, nil, true)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"g@example.com"}, mailer.sent)
}

func TestNotifyEmailsWhenEveryPushFails(t *testing.T) {
	store := &stubStore{
		user: &models.User{ID: "user-1", GuardianEmails: []string{"g@example.com"}},
		guardians: []*models.User{
			{Email: "g@example.com", FCMToken: "tok-dead"},
		},
	}
	mailer := &stubMailer{}
	n := NewNotifier(store, &stubPusher{fail: true}, mailer, nil, true)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"g@example.com"}, mailer.sent)
}

func TestNotifyResolvedEmailsGuardians(t *testing.T) {
	store := &stubStore{
		user: &models.User{ID: "user-1", Name: "Asha", GuardianEmails: []string{"g@example.com"}},
		guardians: []*models.User{
			{Email: "g@example.com", Name: "Guardian"},
		},
	}
	mailer := &stubMailer{}
	n := NewNotifier(store, &stubPusher{}, mailer, nil, true)

	alert := activeAlert()
	alert.Status = models.AlertStatusResolved
	alert.ResolutionReason = "Resolved by user"
	n.NotifyResolved(context.Background(), "user-1", alert)

	assert.Equal(t, []string{"g@example.com"}, mailer.resolved)
}

func TestNotifyResolvedSkipsOfflineUser(t *testing.T) {
	store := &stubStore{}
	mailer := &stubMailer{}
	n := NewNotifier(store, &stubPusher{}, mailer, nil, true)

	n.NotifyResolved(context.Background(), models.OfflineUserID, activeAlert())

	assert.Empty(t, mailer.resolved)
	assert.Empty(t, store.queried)
}

func TestNotifyNoEmailFallbackWithoutOptIn(t *testing.T) {
	store := &stubStore{
		user: &models.User{ID: "user-1", GuardianEmails: []string{"g@example.com"}},
		guardians: []*models.User{
			{Email: "g@example.com"},
		},
	}
	mailer := &stubMailer{}
	n := NewNotifier(store, &stubPusher{}, mailer, nil, false)

	sent, err := n.NotifyGuardians(context.Background(), "user-1", activeAlert())

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, mailer.sent)
}
