package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"sentinel/pkg/models"
)

// AlertSource exposes the in-flight alert. Satisfied by sos.Orchestrator.
type AlertSource interface {
	CurrentAlert() *models.EmergencyAlert
}

// AlertReader fetches the mirrored alert so acknowledgements appended by
// guardians can be seen. Satisfied by store.Client.
type AlertReader interface {
	GetAlert(ctx context.Context, id string) (*models.EmergencyAlert, error)
}

// Notifier re-pushes guardians. Satisfied by guardian.Notifier.
type Notifier interface {
	NotifyGuardians(ctx context.Context, userID string, alert *models.EmergencyAlert) (int, error)
}

// EscalationWorker re-notifies guardians when an active alert has gone
// unacknowledged past the escalation window.
type EscalationWorker struct {
	source   AlertSource
	alerts   AlertReader
	notifier Notifier
	after    time.Duration

	mu            sync.Mutex
	lastEscalated map[string]time.Time
}

func NewEscalationWorker(source AlertSource, alerts AlertReader, notifier Notifier, after time.Duration) *EscalationWorker {
	if after <= 0 {
		after = 5 * time.Minute
	}
	return &EscalationWorker{
		source:        source,
		alerts:        alerts,
		notifier:      notifier,
		after:         after,
		lastEscalated: make(map[string]time.Time),
	}
}

func (w *EscalationWorker) Name() string            { return "alert-escalation" }
func (w *EscalationWorker) Interval() time.Duration { return 1 * time.Minute }

func (w *EscalationWorker) Run(ctx context.Context) error {
	alert := w.source.CurrentAlert()
	if alert == nil || alert.Status != models.AlertStatusActive {
		return nil
	}
	if time.Since(alert.Timestamp) < w.after {
		return nil
	}

	w.mu.Lock()
	last, ok := w.lastEscalated[alert.ID]
	w.mu.Unlock()
	if ok && time.Since(last) < w.after {
		return nil
	}

	// A guardian acknowledgement on the mirrored document stops escalation.
	if w.alerts != nil && !alert.IsLocal() {
		if remote, err := w.alerts.GetAlert(ctx, alert.ID); err == nil && len(remote.GuardianResponses) > 0 {
			log.Printf("ℹ️  Alert %s acknowledged by a guardian, no escalation", alert.ID)
			return nil
		}
	}

	log.Printf("⏫ Escalating unacknowledged alert %s", alert.ID)

	notified, err := w.notifier.NotifyGuardians(ctx, alert.UserID, alert)
	if err != nil {
		return err
	}
	log.Printf("⏫ Escalation reached %d guardian(s) for %s", notified, alert.ID)

	w.mu.Lock()
	w.lastEscalated[alert.ID] = time.Now()
	w.mu.Unlock()

	return nil
}
