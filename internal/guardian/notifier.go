package guardian

import (
	"context"
	"fmt"
	"log"

	"sentinel/internal/push"
	"sentinel/pkg/models"
)

// Store resolves users and guardian email lists. Satisfied by store.Client.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	QueryUsersByEmails(ctx context.Context, emails []string) ([]*models.User, error)
}

// Pusher fans the alert push out to guardian tokens. Satisfied by
// push.FirebaseService.
type Pusher interface {
	SendSOSNotification(ctx context.Context, tokens []string, userName, mapLink, body string) []*push.AlertResult
}

// Mailer is the email fallback used when no token can be reached, plus the
// all-clear notice at resolution time.
type Mailer interface {
	SendEmergencyAlert(to, guardianName, userName, message, mapLink string) error
	SendResolvedNotice(to, guardianName, userName, reason string) error
}

// InvalidTokenSink records dead FCM tokens for the cleanup worker.
type InvalidTokenSink interface {
	RecordInvalidToken(token string) error
}

// Notifier is the guardian fan-out. Every step here is optional: a missing
// session, user document or token list is a silent skip, never an error
// that could block SOS.
type Notifier struct {
	store         Store
	push          Pusher
	mailer        Mailer
	tokens        InvalidTokenSink
	emailFallback bool
}

func NewNotifier(store Store, pusher Pusher, mailer Mailer, tokens InvalidTokenSink, emailFallback bool) *Notifier {
	return &Notifier{
		store:         store,
		push:          pusher,
		mailer:        mailer,
		tokens:        tokens,
		emailFallback: emailFallback,
	}
}

// NotifyGuardians resolves the user's guardian emails to device tokens and
// pushes the alert to each. Returns how many guardians were reached.
func (n *Notifier) NotifyGuardians(ctx context.Context, userID string, alert *models.EmergencyAlert) (int, error) {
	if userID == "" || userID == models.OfflineUserID {
		return 0, nil
	}
	if n.store == nil || n.push == nil {
		return 0, nil
	}

	user, err := n.store.GetUser(ctx, userID)
	if err != nil {
		log.Printf("ℹ️  Guardian lookup skipped, user %s unavailable: %v", userID, err)
		return 0, nil
	}
	if len(user.GuardianEmails) == 0 {
		log.Printf("ℹ️  User %s has no guardians configured", userID)
		return 0, nil
	}

	guardians, err := n.store.QueryUsersByEmails(ctx, user.GuardianEmails)
	if err != nil {
		log.Printf("⚠️  Guardian email resolution incomplete: %v", err)
	}

	var pushTokens []string
	for _, g := range guardians {
		if g.FCMToken != "" {
			pushTokens = append(pushTokens, g.FCMToken)
		}
	}

	userName := user.Name
	if userName == "" {
		userName = "A protected user"
	}

	mapLink := alert.Location.MapLink()

	body := alert.Message
	if body == "" {
		body = fmt.Sprintf("%s triggered an SOS and needs immediate help.", userName)
	}

	if len(pushTokens) == 0 {
		log.Printf("ℹ️  No guardian tokens resolved for %s", userID)
		return n.emailGuardians(guardians, userName, body, mapLink), nil
	}

	results := n.push.SendSOSNotification(ctx, pushTokens, userName, mapLink, body)

	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
			continue
		}
		if push.IsInvalidTokenError(r.Error) && n.tokens != nil {
			if err := n.tokens.RecordInvalidToken(r.Token); err != nil {
				log.Printf("⚠️  Failed to record invalid token: %v", err)
			}
		}
	}

	if sent == 0 {
		log.Printf("⚠️  No guardian push delivered for %s, trying email fallback", userID)
		sent = n.emailGuardians(guardians, userName, body, mapLink)
	} else {
		log.Printf("🛡️  %d/%d guardians notified for %s", sent, len(pushTokens), userID)
	}

	return sent, nil
}

// NotifyResolved emails guardians the all-clear once an alert is closed.
// Email only: a resolution does not warrant another push interruption.
func (n *Notifier) NotifyResolved(ctx context.Context, userID string, alert *models.EmergencyAlert) {
	if userID == "" || userID == models.OfflineUserID || n.store == nil {
		return
	}
	if !n.emailFallback || n.mailer == nil {
		return
	}

	user, err := n.store.GetUser(ctx, userID)
	if err != nil || len(user.GuardianEmails) == 0 {
		return
	}

	guardians, err := n.store.QueryUsersByEmails(ctx, user.GuardianEmails)
	if err != nil {
		log.Printf("⚠️  Guardian email resolution incomplete: %v", err)
	}

	userName := user.Name
	if userName == "" {
		userName = "A protected user"
	}

	for _, g := range guardians {
		if g.Email == "" {
			continue
		}
		if err := n.mailer.SendResolvedNotice(g.Email, g.Name, userName, alert.ResolutionReason); err != nil {
			log.Printf("⚠️  Failed to email all-clear to %s: %v", g.Email, err)
		}
	}
}

func (n *Notifier) emailGuardians(guardians []*models.User, userName, body, mapLink string) int {
	if !n.emailFallback || n.mailer == nil {
		return 0
	}

	sent := 0
	for _, g := range guardians {
		if g.Email == "" {
			continue
		}
		if err := n.mailer.SendEmergencyAlert(g.Email, g.Name, userName, body, mapLink); err != nil {
			log.Printf("❌ Failed to email guardian %s: %v", g.Email, err)
			continue
		}
		sent++
	}
	return sent
}
