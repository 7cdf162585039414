package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertType string

const (
	AlertTypeSOS      AlertType = "sos"
	AlertTypeShake    AlertType = "shake"
	AlertTypeVoice    AlertType = "voice"
	AlertTypeGeofence AlertType = "geofence"
	AlertTypeManual   AlertType = "manual"
)

type AlertStatus string

const (
	AlertStatusActive     AlertStatus = "active"
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusFalseAlarm AlertStatus = "false_alarm"
)

// OfflineUserID is the sentinel owner id used when no session exists.
// SOS must keep working unauthenticated.
const OfflineUserID = "offline_user"

const localIDPrefix = "local_"

type Location struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
	Accuracy  float64 `json:"accuracy" firestore:"accuracy"`
	Address   string  `json:"address,omitempty" firestore:"address,omitempty"`
}

func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// MapLink builds a maps URL for non-zero coordinates, or "".
func (l Location) MapLink() string {
	if l.IsZero() {
		return ""
	}
	return fmt.Sprintf("https://maps.google.com/?q=%f,%f", l.Latitude, l.Longitude)
}

type GuardianResponse struct {
	GuardianID   string    `json:"guardian_id" firestore:"guardianId"`
	GuardianName string    `json:"guardian_name" firestore:"guardianName"`
	Response     string    `json:"response" firestore:"response"`
	RespondedAt  time.Time `json:"responded_at" firestore:"respondedAt"`
}

type EmergencyAlert struct {
	ID                string             `json:"id" firestore:"-"`
	UserID            string             `json:"user_id" firestore:"userId"`
	Type              AlertType          `json:"type" firestore:"type"`
	Status            AlertStatus        `json:"status" firestore:"status"`
	Location          Location           `json:"location" firestore:"location"`
	Timestamp         time.Time          `json:"timestamp" firestore:"timestamp"`
	Message           string             `json:"message" firestore:"message"`
	GuardianResponses []GuardianResponse `json:"guardian_responses" firestore:"guardianResponses"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty" firestore:"resolvedAt,omitempty"`
	ResolvedBy        string             `json:"resolved_by,omitempty" firestore:"resolvedBy,omitempty"`
	ResolutionReason  string             `json:"resolution_reason,omitempty" firestore:"resolutionReason,omitempty"`
}

// NewLocalAlertID builds the id an alert carries until the store assigns one.
func NewLocalAlertID(t time.Time) string {
	return fmt.Sprintf("%s%d", localIDPrefix, t.UnixMilli())
}

// IsLocalAlertID reports whether the alert was never mirrored to the store.
func IsLocalAlertID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

func (a *EmergencyAlert) IsLocal() bool {
	return IsLocalAlertID(a.ID)
}

type SOSContact struct {
	Name        string `json:"name" firestore:"name"`
	Phone       string `json:"phone" firestore:"phone"`
	IsPrimary   bool   `json:"is_primary" firestore:"isPrimary"`
	IsEmergency bool   `json:"is_emergency" firestore:"isEmergency"`
}

// SOSSettings is the per-device fan-out configuration. At most one call
// contact, zero or more SMS contacts.
type SOSSettings struct {
	SelectedCallContact *SOSContact  `json:"selected_call_contact,omitempty"`
	SelectedSMSContacts []SOSContact `json:"selected_sms_contacts"`
	AvailableHelplines  []SOSContact `json:"available_helplines"`
	DeviceContacts      []SOSContact `json:"device_contacts,omitempty"`
}

type User struct {
	ID                string       `json:"id" firestore:"-"`
	Name              string       `json:"name" firestore:"name"`
	Email             string       `json:"email" firestore:"email"`
	GuardianEmails    []string     `json:"guardian_emails" firestore:"guardianEmails"`
	CurrentLocation   *Location    `json:"current_location,omitempty" firestore:"currentLocation,omitempty"`
	EmergencyContacts []SOSContact `json:"emergency_contacts" firestore:"emergencyContacts"`
	FCMToken          string       `json:"fcm_token" firestore:"fcmToken"`
}
