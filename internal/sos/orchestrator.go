package sos

import (
	"context"
	"log"
	"sync"
	"time"

	"sentinel/internal/channel"
	"sentinel/pkg/models"
)

// Store is the shared document mirror guardians observe. Failures here are
// never fatal to the SOS flow.
type Store interface {
	CreateAlert(ctx context.Context, alert *models.EmergencyAlert) (string, error)
	UpdateAlert(ctx context.Context, id string, fields map[string]interface{}) error
}

// Dispatcher raises and cancels the sticky emergency notification on the
// triggering device.
type Dispatcher interface {
	SendPersistentAlert(ctx context.Context, token string, alert *models.EmergencyAlert) error
	CancelPersistentAlert(ctx context.Context, token, alertID string) error
}

// GuardianNotifier pushes the alert to the user's guardian network. Returns
// how many guardians were reached. Optional, must never block SOS.
type GuardianNotifier interface {
	NotifyGuardians(ctx context.Context, userID string, alert *models.EmergencyAlert) (int, error)
}

// Comms is the call/SMS fan-out surface. Satisfied by channel.Channel.
type Comms interface {
	PlaceCall(ctx context.Context, contact models.SOSContact) channel.SendResult
	CallContacts(ctx context.Context, contacts []models.SOSContact) []channel.SendResult
	SendSMSToContacts(ctx context.Context, contacts []models.SOSContact, body string) []channel.SendResult
}

// Journal is the service-local record. Written even when the store mirror is
// unreachable.
type Journal interface {
	RecordAlert(a *models.EmergencyAlert) error
	RenameAlert(oldID, newID string) error
	MarkAlertResolved(alertID string, status models.AlertStatus, resolvedBy, reason string, at time.Time) error
	RecordDelivery(alertID, channelType, target, mechanism string, success bool, errMsg string) error
}

// Locations acquires a best-effort position. Satisfied by location.Chain.
type Locations interface {
	Acquire(ctx context.Context, userID string) models.Location
}

type Options struct {
	Cooldown               time.Duration
	DefaultEmergencyNumber string
	Helplines              []string
	MessageTemplate        string
	Now                    func() time.Time
}

// Orchestrator owns the cooldown and the single-active-alert invariant and
// sequences location acquisition, persistence, guardian push and the
// call/SMS fan-out. Everything except the cooldown rejection is best-effort:
// the emergency must never be blocked by a failing collaborator.
type Orchestrator struct {
	store     Store
	push      Dispatcher
	guardians GuardianNotifier
	comms     Comms
	journal   Journal
	locations Locations

	cooldown      time.Duration
	defaultNumber string
	helplines     map[string]bool
	template      string
	now           func() time.Time

	mu          sync.Mutex
	current     *models.EmergencyAlert
	deviceToken string
	lastAction  time.Time
	settings    models.SOSSettings
}

func NewOrchestrator(store Store, push Dispatcher, guardians GuardianNotifier, comms Comms, journal Journal, locations Locations, opts Options) *Orchestrator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.DefaultEmergencyNumber == "" {
		opts.DefaultEmergencyNumber = "100"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	helplines := make(map[string]bool, len(opts.Helplines))
	for _, h := range opts.Helplines {
		if digits := channel.CleanDigits(h); digits != "" {
			helplines[digits] = true
		}
	}

	return &Orchestrator{
		store:         store,
		push:          push,
		guardians:     guardians,
		comms:         comms,
		journal:       journal,
		locations:     locations,
		cooldown:      opts.Cooldown,
		defaultNumber: opts.DefaultEmergencyNumber,
		helplines:     helplines,
		template:      opts.MessageTemplate,
		now:           opts.Now,
	}
}

type TriggerRequest struct {
	UserID      string           `json:"user_id"`
	UserName    string           `json:"user_name"`
	DeviceToken string           `json:"device_token"`
	Type        models.AlertType `json:"type"`
	Message     string           `json:"message"`
}

// TriggerResult carries the alert plus the device-side effects the client
// performs: vibration and navigation to the emergency screen.
type TriggerResult struct {
	Alert           *models.EmergencyAlert `json:"alert"`
	Reused          bool                   `json:"reused"`
	VibratePattern  []int                  `json:"vibrate_pattern"`
	NavigateTo      string                 `json:"navigate_to"`
	NavigateDelayMs int                    `json:"navigate_delay_ms"`
}

var vibratePattern = []int{0, 500, 200, 500}

// Trigger creates and activates an alert. Idempotent while an alert is
// active: the existing alert is returned and nothing new is created.
// currentAlert is set before any network call so the caller can move to the
// emergency view immediately.
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) *TriggerResult {
	result := &TriggerResult{
		VibratePattern:  vibratePattern,
		NavigateTo:      "emergency",
		NavigateDelayMs: 500,
	}

	userID := req.UserID
	if userID == "" {
		userID = models.OfflineUserID
	}
	alertType := req.Type
	if alertType == "" {
		alertType = models.AlertTypeSOS
	}

	alert := &models.EmergencyAlert{
		ID:                models.NewLocalAlertID(o.now()),
		UserID:            userID,
		Type:              alertType,
		Status:            models.AlertStatusActive,
		Timestamp:         o.now(),
		Message:           req.Message,
		GuardianResponses: []models.GuardianResponse{},
	}

	// Check and install in one critical section: a concurrent trigger must
	// observe the new alert instead of racing past the guard and creating a
	// second one.
	o.mu.Lock()
	if o.current != nil && o.current.Status == models.AlertStatusActive {
		result.Alert = o.current
		result.Reused = true
		o.mu.Unlock()
		log.Printf("ℹ️  SOS already active (%s), duplicate trigger ignored", result.Alert.ID)
		return result
	}
	o.current = alert
	o.deviceToken = req.DeviceToken
	o.mu.Unlock()
	result.Alert = alert

	log.Printf("🚨 SOS triggered by %s (%s): %s", userID, alertType, alert.ID)

	// Location is read after the alert is installed so the guard never
	// waits on a slow provider.
	loc := o.locations.Acquire(ctx, userID)
	o.mu.Lock()
	alert.Location = loc
	o.mu.Unlock()

	if o.journal != nil {
		if err := o.journal.RecordAlert(alert); err != nil {
			log.Printf("⚠️  Failed to journal alert: %v", err)
		}
	}

	// Best-effort mirror. On failure the local alert stays authoritative.
	if o.store != nil {
		if storeID, err := o.store.CreateAlert(ctx, alert); err != nil {
			log.Printf("⚠️  Failed to mirror alert to store: %v (continuing with local id)", err)
		} else {
			o.mu.Lock()
			localID := alert.ID
			alert.ID = storeID
			o.mu.Unlock()

			if o.journal != nil {
				if err := o.journal.RenameAlert(localID, storeID); err != nil {
					log.Printf("⚠️  Failed to rename journal entry: %v", err)
				}
			}
			log.Printf("☁️  Alert mirrored to store: %s -> %s", localID, storeID)
		}
	}

	if o.push != nil && req.DeviceToken != "" {
		if err := o.push.SendPersistentAlert(ctx, req.DeviceToken, alert); err != nil {
			log.Printf("⚠️  Failed to raise persistent notification: %v", err)
		}
	}

	return result
}

// CanTrigger is the cooldown guard. While an alert is active it always
// allows re-entry so the countdown's perform step can run. Otherwise the
// second value is the remaining wait in whole seconds, rounded up.
func (o *Orchestrator) CanTrigger() (bool, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canTriggerLocked()
}

// canTriggerLocked is the gate body. Callers hold o.mu, so the check and any
// following state change happen in one critical section.
func (o *Orchestrator) canTriggerLocked() (bool, int) {
	if o.current != nil && o.current.Status == models.AlertStatusActive {
		return true, 0
	}
	if o.lastAction.IsZero() {
		return true, 0
	}

	elapsed := o.now().Sub(o.lastAction)
	if elapsed >= o.cooldown {
		return true, 0
	}

	remaining := o.cooldown - elapsed
	return false, int((remaining + time.Second - 1) / time.Second)
}

// ActionReport is the explicit outcome of one fan-out pass. Channel failures
// live here as values, they are never raised.
type ActionReport struct {
	Performed         bool                 `json:"performed"`
	WaitSeconds       int                  `json:"wait_seconds,omitempty"`
	Message           string               `json:"message,omitempty"`
	SMSResults        []channel.SendResult `json:"sms_results,omitempty"`
	CallResults       []channel.SendResult `json:"call_results,omitempty"`
	GuardiansNotified int                  `json:"guardians_notified"`
	DefaultCallUsed   bool                 `json:"default_call_used"`
}

// PerformSOSActions runs the actual fan-out: SMS to the personal subset of
// the selected contacts, the call to the selected call contact, guardian
// push, and the default emergency call when nobody else is reachable. The
// cooldown timestamp is stamped only when this step proceeds.
func (o *Orchestrator) PerformSOSActions(ctx context.Context, loc models.Location, message string) (report *ActionReport) {
	report = &ActionReport{}

	// Cooldown check and timestamp stamp share one critical section so two
	// concurrent action passes cannot both clear the gate.
	o.mu.Lock()
	ok, wait := o.canTriggerLocked()
	if !ok {
		o.mu.Unlock()
		report.WaitSeconds = wait
		log.Printf("🚫 SOS actions blocked by cooldown: wait %ds", wait)
		return report
	}
	o.lastAction = o.now()
	settings := o.settings
	alertID := ""
	userID := models.OfflineUserID
	if o.current != nil {
		alertID = o.current.ID
		userID = o.current.UserID
	}
	o.mu.Unlock()

	// Terminal fallback: whatever breaks, the default emergency call is
	// still attempted and nothing propagates to the caller.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ SOS action pipeline failed unexpectedly: %v", r)
			if !report.DefaultCallUsed {
				o.fallbackDefaultCall(ctx, report)
			}
		}
	}()

	report.Performed = true

	body := FormatMessage(o.template, &loc, o.now())
	if message != "" {
		body = message + "\n" + body
	}
	report.Message = body

	personal := o.personalContacts(settings.SelectedSMSContacts)
	report.SMSResults = o.comms.SendSMSToContacts(ctx, personal, body)

	if settings.SelectedCallContact != nil {
		report.CallResults = o.comms.CallContacts(ctx, []models.SOSContact{*settings.SelectedCallContact})
	}

	o.recordDeliveries(alertID, report)

	// Guardian notification is optional and never blocks SOS.
	if o.guardians != nil && userID != models.OfflineUserID {
		o.mu.Lock()
		alert := o.current
		o.mu.Unlock()
		if alert != nil {
			notified, err := o.guardians.NotifyGuardians(ctx, userID, alert)
			if err != nil {
				log.Printf("⚠️  Guardian notification failed (non-blocking): %v", err)
			}
			report.GuardiansNotified = notified
		}
	}

	// Never end with silence: with no call contact and no personal SMS
	// targets, ring the default emergency number.
	if settings.SelectedCallContact == nil && len(personal) == 0 {
		log.Printf("⚠️  No personal contacts configured, calling default emergency number %s", o.defaultNumber)
		o.fallbackDefaultCall(ctx, report)
	}

	return report
}

func (o *Orchestrator) fallbackDefaultCall(ctx context.Context, report *ActionReport) {
	contact := models.SOSContact{Name: "Emergency Services", Phone: o.defaultNumber, IsEmergency: true}
	result := o.comms.PlaceCall(ctx, contact)
	report.CallResults = append(report.CallResults, result)
	report.DefaultCallUsed = true

	if o.journal != nil {
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		alertID := ""
		if cur := o.CurrentAlert(); cur != nil {
			alertID = cur.ID
		}
		if err := o.journal.RecordDelivery(alertID, "call", contact.Phone, result.Mechanism, result.Success, errText); err != nil {
			log.Printf("⚠️  Failed to record default call: %v", err)
		}
	}
}

// personalContacts strips official helpline numbers out of the SMS targets.
// Helplines cannot receive SMS; they may still be called.
func (o *Orchestrator) personalContacts(contacts []models.SOSContact) []models.SOSContact {
	personal := make([]models.SOSContact, 0, len(contacts))
	for _, c := range contacts {
		digits := channel.CleanDigits(c.Phone)
		if c.IsEmergency || o.helplines[digits] {
			log.Printf("ℹ️  Excluding helpline %s (%s) from SMS fan-out", c.Name, c.Phone)
			continue
		}
		personal = append(personal, c)
	}
	return personal
}

func (o *Orchestrator) recordDeliveries(alertID string, report *ActionReport) {
	if o.journal == nil {
		return
	}

	record := func(channelType string, results []channel.SendResult) {
		for _, r := range results {
			errText := ""
			if r.Err != nil {
				errText = r.Err.Error()
			}
			if err := o.journal.RecordDelivery(alertID, channelType, r.Contact.Phone, r.Mechanism, r.Success, errText); err != nil {
				log.Printf("⚠️  Failed to record delivery: %v", err)
			}
		}
	}

	record("sms", report.SMSResults)
	record("call", report.CallResults)
}

// ResolveEmergency closes the alert. Local state always returns to idle,
// even when the store update fails, so a new trigger stays possible.
func (o *Orchestrator) ResolveEmergency(ctx context.Context, alertID, resolvedBy, reason string) {
	if reason == "" {
		reason = "Resolved by user"
	}
	o.finishAlert(ctx, alertID, models.AlertStatusResolved, resolvedBy, reason)
}

// ResolveByGuardian is the guardian resolution path.
func (o *Orchestrator) ResolveByGuardian(ctx context.Context, alertID, guardianID string) {
	o.finishAlert(ctx, alertID, models.AlertStatusResolved, guardianID, "Resolved by guardian")
}

// MarkFalseAlarm closes the alert as a false alarm.
func (o *Orchestrator) MarkFalseAlarm(ctx context.Context, alertID, resolvedBy, reason string) {
	if reason == "" {
		reason = "Marked as false alarm"
	}
	o.finishAlert(ctx, alertID, models.AlertStatusFalseAlarm, resolvedBy, reason)
}

func (o *Orchestrator) finishAlert(ctx context.Context, alertID string, status models.AlertStatus, resolvedBy, reason string) {
	now := o.now()

	o.mu.Lock()
	alert := o.current
	token := o.deviceToken
	o.mu.Unlock()

	if alert != nil && alert.ID == alertID {
		alert.Status = status
		alert.ResolvedAt = &now
		alert.ResolvedBy = resolvedBy
		alert.ResolutionReason = reason
	}

	// Alerts that were never mirrored have nothing to update remotely.
	if o.store != nil && !models.IsLocalAlertID(alertID) {
		fields := map[string]interface{}{
			"status":           string(status),
			"resolvedAt":       now,
			"resolvedBy":       resolvedBy,
			"resolutionReason": reason,
		}
		if err := o.store.UpdateAlert(ctx, alertID, fields); err != nil {
			log.Printf("⚠️  Failed to update alert %s in store: %v (local state cleared anyway)", alertID, err)
		}
	}

	if o.journal != nil {
		if err := o.journal.MarkAlertResolved(alertID, status, resolvedBy, reason, now); err != nil {
			log.Printf("⚠️  Failed to close journal entry: %v", err)
		}
	}

	if o.push != nil && token != "" {
		if err := o.push.CancelPersistentAlert(ctx, token, alertID); err != nil {
			log.Printf("⚠️  Failed to cancel persistent notification: %v", err)
		}
	}

	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()

	log.Printf("✅ Alert %s closed (%s): %s", alertID, status, reason)
}

// CurrentAlert returns the in-flight alert, or nil when idle.
func (o *Orchestrator) CurrentAlert() *models.EmergencyAlert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// DeviceToken returns the token of the triggering device. Channel intent
// mechanisms use it as their TokenSource.
func (o *Orchestrator) DeviceToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceToken
}

// OnSettingsUpdate receives contact configuration pushed by the settings
// manager subscription.
func (o *Orchestrator) OnSettingsUpdate(s models.SOSSettings) {
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
	log.Printf("⚙️  SOS settings updated (%d SMS contacts, call contact: %v)",
		len(s.SelectedSMSContacts), s.SelectedCallContact != nil)
}

// Settings returns the current fan-out configuration.
func (o *Orchestrator) Settings() models.SOSSettings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}
