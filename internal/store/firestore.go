package store

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"sentinel/pkg/models"
)

const (
	usersCollection    = "users"
	alertsCollection   = "emergencyAlerts"
	geofenceCollection = "geofence_events"
)

// Firestore "in" queries accept at most 10 values per clause.
const inQueryLimit = 10

// Client wraps the Firestore document store shared with guardian apps.
type Client struct {
	fs *firestore.Client
}

func New(ctx context.Context, credentialsPath, projectID string) (*Client, error) {
	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}

	log.Println("✅ Firestore store initialized successfully")

	return &Client{fs: fs}, nil
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// CreateAlert mirrors an alert and returns the store-assigned id.
func (c *Client) CreateAlert(ctx context.Context, alert *models.EmergencyAlert) (string, error) {
	ref, _, err := c.fs.Collection(alertsCollection).Add(ctx, alert)
	if err != nil {
		return "", fmt.Errorf("failed to create alert: %w", err)
	}
	return ref.ID, nil
}

// UpdateAlert applies a partial update to an alert document.
func (c *Client) UpdateAlert(ctx context.Context, id string, fields map[string]interface{}) error {
	_, err := c.fs.Collection(alertsCollection).Doc(id).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetAlert(ctx context.Context, id string) (*models.EmergencyAlert, error) {
	doc, err := c.fs.Collection(alertsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}

	var alert models.EmergencyAlert
	if err := doc.DataTo(&alert); err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", id, err)
	}
	alert.ID = doc.Ref.ID

	return &alert, nil
}

// AppendGuardianResponse records a guardian acknowledgement. The list is
// append-only from the guardian side.
func (c *Client) AppendGuardianResponse(ctx context.Context, alertID string, resp models.GuardianResponse) error {
	_, err := c.fs.Collection(alertsCollection).Doc(alertID).Update(ctx, []firestore.Update{
		{Path: "guardianResponses", Value: firestore.ArrayUnion(resp)},
	})
	if err != nil {
		return fmt.Errorf("failed to append guardian response: %w", err)
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	doc, err := c.fs.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	user.ID = doc.Ref.ID

	return &user, nil
}

// QueryUsersByEmails resolves guardian emails to user documents, chunked to
// respect the "in" clause limit.
func (c *Client) QueryUsersByEmails(ctx context.Context, emails []string) ([]*models.User, error) {
	var users []*models.User

	for start := 0; start < len(emails); start += inQueryLimit {
		end := start + inQueryLimit
		if end > len(emails) {
			end = len(emails)
		}

		iter := c.fs.Collection(usersCollection).
			Where("email", "in", emails[start:end]).
			Documents(ctx)

		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return users, fmt.Errorf("failed to query users by email: %w", err)
			}

			var user models.User
			if err := doc.DataTo(&user); err != nil {
				log.Printf("⚠️  Skipping undecodable user %s: %v", doc.Ref.ID, err)
				continue
			}
			user.ID = doc.Ref.ID
			users = append(users, &user)
		}
	}

	return users, nil
}

// SaveLastKnownLocation keeps the user's latest position in the shared store
// so guardians (and the location fallback chain) can read it.
func (c *Client) SaveLastKnownLocation(ctx context.Context, userID string, loc models.Location) error {
	_, err := c.fs.Collection(usersCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"currentLocation": loc,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to save location for %s: %w", userID, err)
	}
	return nil
}

func (c *Client) LastKnownLocation(ctx context.Context, userID string) (*models.Location, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CurrentLocation == nil {
		return nil, fmt.Errorf("no stored location for user %s", userID)
	}
	return user.CurrentLocation, nil
}

// RecordGeofenceEvent logs a geofence boundary crossing observed by a device.
func (c *Client) RecordGeofenceEvent(ctx context.Context, event map[string]interface{}) error {
	_, _, err := c.fs.Collection(geofenceCollection).Add(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to record geofence event: %w", err)
	}
	return nil
}

// ClearInvalidToken removes a dead FCM token from every user document that
// still carries it. Returns the number of documents touched.
func (c *Client) ClearInvalidToken(ctx context.Context, token string) (int, error) {
	iter := c.fs.Collection(usersCollection).
		Where("fcmToken", "==", token).
		Documents(ctx)

	cleared := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return cleared, fmt.Errorf("failed to query token owners: %w", err)
		}

		if _, err := doc.Ref.Update(ctx, []firestore.Update{{Path: "fcmToken", Value: ""}}); err != nil {
			log.Printf("⚠️  Failed to clear token on user %s: %v", doc.Ref.ID, err)
			continue
		}
		cleared++
	}

	return cleared, nil
}
