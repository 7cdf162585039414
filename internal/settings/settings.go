package settings

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"sentinel/pkg/models"
)

// StorageKey is the fixed key the settings blob lives under.
const StorageKey = "sos_settings_v1"

// Store persists the raw settings blob. Satisfied by database.DB.
type Store interface {
	SaveSettings(storageKey string, payload []byte) error
	LoadSettings(storageKey string) ([]byte, error)
}

// Subscriber receives every settings change, including the initial load.
type Subscriber func(models.SOSSettings)

// Manager owns the fan-out configuration: loaded once at startup, updated
// through Update, pushed to subscribers (the orchestrator among them).
type Manager struct {
	store Store
	key   string

	mu      sync.RWMutex
	current models.SOSSettings
	subs    []Subscriber
}

func NewManager(store Store, key string) *Manager {
	if key == "" {
		key = StorageKey
	}
	return &Manager{store: store, key: key}
}

// Load reads the persisted blob, falling back to defaults when none exists,
// and pushes the result to subscribers.
func (m *Manager) Load() error {
	payload, err := m.store.LoadSettings(m.key)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s := defaults()
	if payload != nil {
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Errorf("failed to decode settings: %w", err)
		}
		if len(s.AvailableHelplines) == 0 {
			s.AvailableHelplines = DefaultHelplines()
		}
	}

	m.mu.Lock()
	m.current = s
	subs := append([]Subscriber(nil), m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}

	log.Printf("⚙️  Settings loaded (%d SMS contacts)", len(s.SelectedSMSContacts))
	return nil
}

func (m *Manager) Current() models.SOSSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update persists the new configuration and notifies every subscriber.
func (m *Manager) Update(s models.SOSSettings) error {
	if len(s.AvailableHelplines) == 0 {
		s.AvailableHelplines = DefaultHelplines()
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := m.store.SaveSettings(m.key, payload); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = s
	subs := append([]Subscriber(nil), m.subs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
	return nil
}

// Subscribe registers a listener and immediately delivers the current
// state, so wiring order does not matter.
func (m *Manager) Subscribe(fn Subscriber) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	current := m.current
	m.mu.Unlock()

	fn(current)
}

func defaults() models.SOSSettings {
	return models.SOSSettings{
		SelectedSMSContacts: []models.SOSContact{},
		AvailableHelplines:  DefaultHelplines(),
	}
}

// DefaultHelplines is the fixed catalogue of official helpline numbers.
// They may be selected as call targets but never receive SMS.
func DefaultHelplines() []models.SOSContact {
	return []models.SOSContact{
		{Name: "Police", Phone: "100", IsEmergency: true},
		{Name: "Fire Brigade", Phone: "101", IsEmergency: true},
		{Name: "Ambulance", Phone: "102", IsEmergency: true},
		{Name: "Emergency Medical", Phone: "103", IsEmergency: true},
		{Name: "Disaster Management", Phone: "108", IsEmergency: true},
		{Name: "Women Helpline", Phone: "1091", IsEmergency: true},
		{Name: "Child Helpline", Phone: "1098", IsEmergency: true},
		{Name: "Women Safety (Railways)", Phone: "182", IsEmergency: true},
		{Name: "National Emergency", Phone: "112", IsEmergency: true},
	}
}
