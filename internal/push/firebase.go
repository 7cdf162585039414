package push

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"sentinel/pkg/models"
)

type FirebaseService struct {
	client *messaging.Client
}

type AlertResult struct {
	Success      bool
	Token        string
	MessageID    string
	Error        error
	SentAt       time.Time
	DeliveryType string // "push", "sms", "email", "call"
}

// NewFirebaseService initializes the FCM messaging client.
func NewFirebaseService(credentialsPath, projectID string) (*FirebaseService, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}

	log.Println("✅ Firebase push service initialized successfully")

	return &FirebaseService{client: client}, nil
}

// SendSOSNotification fans an emergency push out to the guardian tokens.
// Each send is attempted independently.
func (s *FirebaseService) SendSOSNotification(ctx context.Context, tokens []string, userName, mapLink, body string) []*AlertResult {
	results := make([]*AlertResult, 0, len(tokens))

	for _, token := range tokens {
		result := s.sendToToken(ctx, token, userName, mapLink, body)
		if result.Error != nil {
			log.Printf("❌ Failed to push to guardian token: %v", result.Error)
		}
		results = append(results, result)
	}

	return results
}

func (s *FirebaseService) sendToToken(ctx context.Context, token, userName, mapLink, body string) *AlertResult {
	if token == "" {
		return &AlertResult{
			Success:      false,
			Token:        token,
			Error:        fmt.Errorf("device token is empty"),
			SentAt:       time.Now(),
			DeliveryType: "push",
		}
	}

	data := map[string]string{
		"type":      "emergency_alert",
		"user_name": userName,
		"priority":  "high",
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
	}
	if mapLink != "" {
		data["map_link"] = mapLink
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("🚨 SOS: %s needs help", userName),
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:        "alert",
				Priority:     messaging.PriorityHigh,
				ChannelID:    "sentinel_alerts",
				DefaultSound: true,
				Color:        "#FF0000",
			},
		},
	}

	response, err := s.client.Send(ctx, message)

	return &AlertResult{
		Success:      err == nil,
		Token:        token,
		MessageID:    response,
		Error:        err,
		SentAt:       time.Now(),
		DeliveryType: "push",
	}
}

// SendPersistentAlert raises the sticky notification on the triggering
// device itself so the emergency stays visible until resolved.
func (s *FirebaseService) SendPersistentAlert(ctx context.Context, token string, alert *models.EmergencyAlert) error {
	if token == "" {
		return fmt.Errorf("device token is empty")
	}

	ttl := time.Duration(0)

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: "🚨 Emergency active",
			Body:  "Your SOS alert is active. Tap to open the emergency screen.",
		},
		Data: map[string]string{
			"type":     "persistent_alert",
			"alert_id": alert.ID,
			"action":   "OPEN_EMERGENCY_SCREEN",
			"sticky":   "true",
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
			Notification: &messaging.AndroidNotification{
				Sound:        "alert",
				Priority:     messaging.PriorityHigh,
				ChannelID:    "sentinel_emergency",
				DefaultSound: true,
				ClickAction:  "OPEN_EMERGENCY_SCREEN",
				Color:        "#FF0000",
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending persistent alert push: %w", err)
	}

	log.Printf("📌 Persistent alert raised for %s: %s", alert.ID, response)
	return nil
}

// CancelPersistentAlert sends the data-only push that dismisses the sticky
// notification after resolution.
func (s *FirebaseService) CancelPersistentAlert(ctx context.Context, token, alertID string) error {
	if token == "" {
		return fmt.Errorf("device token is empty")
	}

	message := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":     "cancel_persistent_alert",
			"alert_id": alertID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("error cancelling persistent alert: %w", err)
	}

	log.Printf("🔕 Persistent alert cancelled for %s", alertID)
	return nil
}

// SendIntentPush delivers a data-only push instructing the device to open
// the dialer or SMS composer pre-filled. Used as a degraded channel
// mechanism when direct server-side delivery fails.
func (s *FirebaseService) SendIntentPush(ctx context.Context, token string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("device token is empty")
	}

	message := &messaging.Message{
		Token: token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("error sending intent push: %w", err)
	}
	return nil
}

// ValidateToken checks a device token with a silent data message.
func (s *FirebaseService) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	message := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type": "token_validation",
		},
		Android: &messaging.AndroidConfig{
			Priority: "normal",
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		log.Printf("❌ ValidateToken failed: %v", err)
		return false
	}
	return true
}

// IsInvalidTokenError reports whether the Firebase error means the token is
// permanently dead and should be cleared.
func IsInvalidTokenError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsSenderIDMismatch(err)
}
