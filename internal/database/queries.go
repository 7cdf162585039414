package database

import (
	"database/sql"
	"fmt"
	"time"

	"sentinel/pkg/models"
)

// SaveSettings upserts the JSON settings blob under its storage key.
func (db *DB) SaveSettings(storageKey string, payload []byte) error {
	query := `
		INSERT INTO sos_settings (storage_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (storage_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`

	if _, err := db.conn.Exec(query, storageKey, payload); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LoadSettings returns the stored settings blob, or nil when none exists.
func (db *DB) LoadSettings(storageKey string) ([]byte, error) {
	var payload []byte
	err := db.conn.QueryRow(
		`SELECT payload FROM sos_settings WHERE storage_key = $1`, storageKey,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return payload, nil
}

// RecordAlert journals an alert locally. Written even when the Firestore
// mirror is unreachable.
func (db *DB) RecordAlert(a *models.EmergencyAlert) error {
	query := `
		INSERT INTO alert_journal (alert_id, user_id, type, status, latitude, longitude, accuracy, address, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (alert_id) DO NOTHING
	`

	_, err := db.conn.Exec(query,
		a.ID, a.UserID, string(a.Type), string(a.Status),
		a.Location.Latitude, a.Location.Longitude, a.Location.Accuracy, a.Location.Address,
		a.Message, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to journal alert: %w", err)
	}
	return nil
}

// RenameAlert swaps the local id for the store-assigned one after a
// successful mirror.
func (db *DB) RenameAlert(oldID, newID string) error {
	_, err := db.conn.Exec(
		`UPDATE alert_journal SET alert_id = $2 WHERE alert_id = $1`, oldID, newID,
	)
	if err != nil {
		return fmt.Errorf("failed to rename alert: %w", err)
	}
	return nil
}

// MarkAlertResolved closes the journal entry for an alert.
func (db *DB) MarkAlertResolved(alertID string, status models.AlertStatus, resolvedBy, reason string, at time.Time) error {
	result, err := db.conn.Exec(`
		UPDATE alert_journal
		SET status = $2, resolved_at = $3, resolved_by = $4, resolution_reason = $5
		WHERE alert_id = $1
	`, alertID, string(status), at, resolvedBy, reason)
	if err != nil {
		return fmt.Errorf("failed to resolve journal entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %s not found in journal", alertID)
	}
	return nil
}

// RecordDelivery logs one call/SMS/push outcome for the stats endpoint.
func (db *DB) RecordDelivery(alertID, channel, target, mechanism string, success bool, errMsg string) error {
	_, err := db.conn.Exec(`
		INSERT INTO delivery_log (alert_id, channel, target, mechanism, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, alertID, channel, target, mechanism, success, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (db *DB) RecordInvalidToken(token string) error {
	_, err := db.conn.Exec(`
		INSERT INTO invalid_tokens (token) VALUES ($1)
		ON CONFLICT (token) DO NOTHING
	`, token)
	if err != nil {
		return fmt.Errorf("failed to record invalid token: %w", err)
	}
	return nil
}

func (db *DB) PendingInvalidTokens(limit int) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT token FROM invalid_tokens
		WHERE cleared = FALSE
		ORDER BY recorded_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invalid tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (db *DB) MarkTokenCleared(token string) error {
	_, err := db.conn.Exec(
		`UPDATE invalid_tokens SET cleared = TRUE WHERE token = $1`, token,
	)
	if err != nil {
		return fmt.Errorf("failed to mark token cleared: %w", err)
	}
	return nil
}

type Stats struct {
	TotalAlerts         int `json:"total_alerts"`
	ActiveAlerts        int `json:"active_alerts"`
	DeliveriesSucceeded int `json:"deliveries_succeeded"`
	DeliveriesFailed    int `json:"deliveries_failed"`
}

func (db *DB) GetStats() (*Stats, error) {
	var s Stats

	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active')
		FROM alert_journal
	`).Scan(&s.TotalAlerts, &s.ActiveAlerts)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert stats: %w", err)
	}

	err = db.conn.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success)
		FROM delivery_log
	`).Scan(&s.DeliveriesSucceeded, &s.DeliveriesFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery stats: %w", err)
	}

	return &s, nil
}
