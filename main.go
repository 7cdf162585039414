package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"sentinel/internal/channel"
	"sentinel/internal/config"
	"sentinel/internal/database"
	"sentinel/internal/email"
	"sentinel/internal/guardian"
	"sentinel/internal/livetrack"
	"sentinel/internal/location"
	"sentinel/internal/middleware"
	"sentinel/internal/push"
	"sentinel/internal/settings"
	"sentinel/internal/sos"
	"sentinel/internal/store"
	"sentinel/internal/workers"
	"sentinel/pkg/models"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// --- LOG RING BUFFER ---

var (
	startTime  time.Time
	serverLogs []string
	logsMutex  sync.RWMutex
)

const maxLogs = 100

type logWriter struct{}

func (lw logWriter) Write(p []byte) (n int, err error) {
	logsMutex.Lock()
	defer logsMutex.Unlock()

	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}

	timestamp := time.Now().Format("15:04:05")
	logEntry := fmt.Sprintf("[%s] %s", timestamp, msg)

	serverLogs = append(serverLogs, logEntry)
	if len(serverLogs) > maxLogs {
		serverLogs = serverLogs[1:]
	}

	// Echo to console as well
	fmt.Println(logEntry)

	return len(p), nil
}

// --- SERVER ---

type apiServer struct {
	cfg      *config.Config
	db       *database.DB
	storeCli *store.Client
	orch     *sos.Orchestrator
	notifier *guardian.Notifier
	settings *settings.Manager
	hub      *livetrack.Hub
	reports  *location.DeviceReports
	prompts  *channel.PromptLog
	workers  *workers.WorkerManager
	pushOK   bool
}

func main() {
	log.SetFlags(0)
	log.SetOutput(logWriter{})

	startTime = time.Now()
	log.Println("🚀 Starting Sentinel SOS server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ DB error: %v", err)
	}
	defer db.Close()

	// Firestore mirror and FCM push are best-effort: the service starts
	// without them and keeps SOS working on local state.
	var storeCli *store.Client
	var pushService *push.FirebaseService
	if cfg.FirebaseCredentialsPath != "" {
		ctx := context.Background()
		storeCli, err = store.New(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseProjectID)
		if err != nil {
			log.Printf("⚠️  Warning: Firestore unavailable: %v", err)
			storeCli = nil
		}

		pushService, err = push.NewFirebaseService(cfg.FirebaseCredentialsPath, cfg.FirebaseProjectID)
		if err != nil {
			log.Printf("⚠️  Warning: Firebase push unavailable: %v", err)
			pushService = nil
		}
	} else {
		log.Println("⚠️  Firebase not configured: store mirror and push disabled")
	}

	var emailService *email.EmailService
	if cfg.EnableEmailFallback {
		emailService, err = email.NewEmailService(cfg)
		if err != nil {
			log.Printf("⚠️  Email service not configured: %v", err)
			emailService = nil
		} else {
			log.Println("✅ Email service initialized")
		}
	}

	// The orchestrator is assigned below; the closure lets the channel
	// mechanisms read the triggering device's token lazily.
	var orch *sos.Orchestrator
	tokenSource := channel.TokenSource(func() string {
		if orch == nil {
			return ""
		}
		return orch.DeviceToken()
	})

	prompts := channel.NewPromptLog(50)
	comms := buildChannel(cfg, pushService, tokenSource, prompts)

	reports := location.NewDeviceReports()
	var lastKnown location.LastKnownStore
	if storeCli != nil {
		lastKnown = storeCli
	}
	chain := location.NewChain(
		reports.Provider("device-fresh", 30*time.Second),
		reports.Provider("device-recent", 5*time.Minute),
		lastKnown,
	)

	var guardianStore guardian.Store
	if storeCli != nil {
		guardianStore = storeCli
	}
	var guardianPush guardian.Pusher
	if pushService != nil {
		guardianPush = pushService
	}
	var mailer guardian.Mailer
	if emailService != nil {
		mailer = emailService
	}
	notifier := guardian.NewNotifier(guardianStore, guardianPush, mailer, db, cfg.EnableEmailFallback)

	var sosStore sos.Store
	if storeCli != nil {
		sosStore = storeCli
	}
	var dispatcher sos.Dispatcher
	if pushService != nil {
		dispatcher = pushService
	}
	orch = sos.NewOrchestrator(sosStore, dispatcher, notifier, comms, db, chain, sos.Options{
		Cooldown:               cfg.Cooldown(),
		DefaultEmergencyNumber: cfg.DefaultEmergencyNumber,
		Helplines:              cfg.HelplineNumbers,
		MessageTemplate:        cfg.MessageTemplate,
	})

	settingsMgr := settings.NewManager(db, settings.StorageKey)
	settingsMgr.Subscribe(orch.OnSettingsUpdate)
	if err := settingsMgr.Load(); err != nil {
		log.Printf("⚠️  Failed to load settings, using defaults: %v", err)
	}

	var sink livetrack.LocationSink
	if storeCli != nil {
		sink = storeCli
	}
	hub := livetrack.NewHub(chain, reports, sink)
	defer hub.Close()

	wm := workers.NewWorkerManager()
	var alertReader workers.AlertReader
	if storeCli != nil {
		alertReader = storeCli
	}
	wm.RegisterWorker(workers.NewEscalationWorker(
		orch, alertReader, notifier,
		time.Duration(cfg.AlertEscalationTime)*time.Minute,
	))
	if storeCli != nil {
		wm.RegisterWorker(workers.NewTokenCleanupWorker(db, storeCli))
	}
	wm.Start()
	defer wm.Stop()

	server := &apiServer{
		cfg:      cfg,
		db:       db,
		storeCli: storeCli,
		orch:     orch,
		notifier: notifier,
		settings: settingsMgr,
		hub:      hub,
		reports:  reports,
		prompts:  prompts,
		workers:  wm,
		pushOK:   pushService != nil,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.HandleWebSocket)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.DeviceSession)
	api.HandleFunc("/sos/trigger", server.triggerHandler).Methods("POST")
	api.HandleFunc("/sos/actions", server.actionsHandler).Methods("POST")
	api.HandleFunc("/sos/current", server.currentAlertHandler).Methods("GET")
	api.HandleFunc("/sos/prompts", server.promptsHandler).Methods("GET")
	api.HandleFunc("/sos/{id}/resolve", server.resolveHandler).Methods("POST")
	api.HandleFunc("/sos/{id}/false-alarm", server.falseAlarmHandler).Methods("POST")
	api.HandleFunc("/settings", server.getSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", server.updateSettingsHandler).Methods("PUT")
	api.HandleFunc("/location", server.locationPingHandler).Methods("POST")
	api.HandleFunc("/geofence/event", server.geofenceHandler).Methods("POST")
	api.HandleFunc("/stats", server.statsHandler).Methods("GET")
	api.HandleFunc("/health", server.healthCheckHandler).Methods("GET")
	api.HandleFunc("/logs", server.logsHandler).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	log.Printf("✅ Server ready on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, corsMiddleware(router)))
}

// buildChannel assembles the cascades from whatever capabilities are
// configured, installing null objects where nothing is.
func buildChannel(cfg *config.Config, pushService *push.FirebaseService, tokens channel.TokenSource, prompts *channel.PromptLog) *channel.Channel {
	var calls []channel.CallMechanism
	var sms []channel.SMSMechanism

	twilioReady := cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != ""
	if twilioReady {
		calls = append(calls, channel.NewTwilioVoice(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, ""))
		sms = append(sms, channel.NewTwilioSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber))
		log.Println("✅ Twilio call/SMS mechanisms enabled")
	}

	if cfg.SMSGatewayURL != "" {
		sms = append(sms, channel.NewHTTPGatewaySMS(cfg.SMSGatewayURL))
		log.Println("✅ HTTP SMS gateway mechanism enabled")
	}

	if pushService != nil {
		calls = append(calls, channel.NewDialIntentPush(pushService, tokens))
		sms = append(sms, channel.NewComposeIntentPush(pushService, tokens))
	}

	if len(calls) == 0 {
		calls = append(calls, channel.NoopCall{})
		log.Println("⚠️  No call mechanism configured, calls will be reported as failed")
	}

	// The manual prompt is always the terminal SMS fallback.
	sms = append(sms, channel.NewManualPromptSMS(prompts))

	return channel.New(calls, sms, cfg.CallDelay(), cfg.SMSDelay())
}

// --- API HANDLERS ---

func (s *apiServer) triggerHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	var payload struct {
		Type     models.AlertType `json:"type"`
		Message  string           `json:"message"`
		Location *models.Location `json:"location"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	if payload.Location != nil {
		s.reports.Record(session.UserID, *payload.Location)
	}

	result := s.orch.Trigger(r.Context(), sos.TriggerRequest{
		UserID:      session.UserID,
		UserName:    session.UserName,
		DeviceToken: session.DeviceToken,
		Type:        payload.Type,
		Message:     payload.Message,
	})

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *apiServer) actionsHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message  string           `json:"message"`
		Location *models.Location `json:"location"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	var loc models.Location
	if payload.Location != nil {
		loc = *payload.Location
	} else if cur := s.orch.CurrentAlert(); cur != nil {
		loc = cur.Location
	}

	report := s.orch.PerformSOSActions(r.Context(), loc, payload.Message)
	if !report.Performed {
		// The cooldown rejection is the one user-visible blocking message.
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":        fmt.Sprintf("Please wait %d seconds before triggering SOS again", report.WaitSeconds),
			"wait_seconds": report.WaitSeconds,
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) currentAlertHandler(w http.ResponseWriter, r *http.Request) {
	alert := s.orch.CurrentAlert()
	if alert == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active alert"})
		return
	}

	ok, wait := s.orch.CanTrigger()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alert":        alert,
		"can_trigger":  ok,
		"wait_seconds": wait,
	})
}

func (s *apiServer) promptsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prompts": s.prompts.Recent(20),
	})
}

func (s *apiServer) resolveHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	alertID := mux.Vars(r)["id"]

	var payload struct {
		Reason     string `json:"reason"`
		GuardianID string `json:"guardian_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	alert := s.orch.CurrentAlert()

	if payload.GuardianID != "" {
		s.orch.ResolveByGuardian(r.Context(), alertID, payload.GuardianID)
	} else {
		s.orch.ResolveEmergency(r.Context(), alertID, session.UserID, payload.Reason)
	}

	if alert != nil && alert.ID == alertID {
		go s.notifier.NotifyResolved(context.Background(), alert.UserID, alert)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "alert_id": alertID})
}

func (s *apiServer) falseAlarmHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	alertID := mux.Vars(r)["id"]

	var payload struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	s.orch.MarkFalseAlarm(r.Context(), alertID, session.UserID, payload.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "false_alarm", "alert_id": alertID})
}

func (s *apiServer) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *apiServer) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var payload models.SOSSettings
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid settings payload"})
		return
	}

	if err := s.settings.Update(payload); err != nil {
		log.Printf("❌ Failed to update settings: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to persist settings"})
		return
	}

	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *apiServer) locationPingHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	var loc models.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid location payload"})
		return
	}

	s.hub.Publish(session.UserID, loc)
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) geofenceHandler(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	var payload struct {
		Event    string           `json:"event"`
		Location *models.Location `json:"location"`
		Trigger  bool             `json:"trigger"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	if s.storeCli != nil {
		event := map[string]interface{}{
			"userId":    session.UserID,
			"event":     payload.Event,
			"timestamp": time.Now(),
		}
		if payload.Location != nil {
			event["location"] = *payload.Location
		}
		if err := s.storeCli.RecordGeofenceEvent(r.Context(), event); err != nil {
			log.Printf("⚠️  Failed to record geofence event: %v", err)
		}
	}

	if !payload.Trigger {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
		return
	}

	if payload.Location != nil {
		s.reports.Record(session.UserID, *payload.Location)
	}
	result := s.orch.Trigger(r.Context(), sos.TriggerRequest{
		UserID:      session.UserID,
		UserName:    session.UserName,
		DeviceToken: session.DeviceToken,
		Type:        models.AlertTypeGeofence,
		Message:     fmt.Sprintf("Geofence %s event", payload.Event),
	})
	writeJSON(w, http.StatusCreated, result)
}

func (s *apiServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	dbStats, err := s.db.GetStats()
	if err != nil {
		log.Printf("⚠️  Failed to read stats: %v", err)
		dbStats = &database.Stats{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":       formatDuration(time.Since(startTime)),
		"alerts":       dbStats,
		"watchers":     s.hub.WatcherCount(),
		"workers":      s.workers.GetStats(),
		"firestore_ok": s.storeCli != nil,
		"push_ok":      s.pushOK,
		"timestamp":    time.Now().Unix(),
	})
}

func (s *apiServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := s.db.GetConnection().Ping(); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *apiServer) logsHandler(w http.ResponseWriter, r *http.Request) {
	logsMutex.RLock()
	defer logsMutex.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": serverLogs,
	})
}

// --- HELPERS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-User-Name, X-Device-Token")

		// Answer preflight immediately
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
