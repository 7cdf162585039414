package settings

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/pkg/models"
)

type memStore struct {
	payload []byte
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) SaveSettings(_ string, payload []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.payload = payload
	m.saves++
	return nil
}

func (m *memStore) LoadSettings(string) ([]byte, error) {
	return m.payload, m.loadErr
}

func TestLoadDefaultsWhenNothingPersisted(t *testing.T) {
	m := NewManager(&memStore{}, "")

	require.NoError(t, m.Load())

	s := m.Current()
	assert.Empty(t, s.SelectedSMSContacts)
	assert.Nil(t, s.SelectedCallContact)
	assert.Len(t, s.AvailableHelplines, 9)
	assert.Equal(t, "100", s.AvailableHelplines[0].Phone)
}

func TestLoadDecodesPersistedBlob(t *testing.T) {
	stored := models.SOSSettings{
		SelectedCallContact: &models.SOSContact{Name: "Dad", Phone: "5551234"},
		SelectedSMSContacts: []models.SOSContact{{Name: "Mom", Phone: "5550000"}},
	}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	m := NewManager(&memStore{payload: payload}, StorageKey)
	require.NoError(t, m.Load())

	s := m.Current()
	require.NotNil(t, s.SelectedCallContact)
	assert.Equal(t, "Dad", s.SelectedCallContact.Name)
	require.Len(t, s.SelectedSMSContacts, 1)
	// The helpline catalogue is restored when the blob omits it.
	assert.NotEmpty(t, s.AvailableHelplines)
}

func TestLoadPropagatesStoreError(t *testing.T) {
	m := NewManager(&memStore{loadErr: errors.New("db down")}, StorageKey)

	assert.Error(t, m.Load())
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	store := &memStore{}
	m := NewManager(store, StorageKey)

	var seen []models.SOSSettings
	m.Subscribe(func(s models.SOSSettings) { seen = append(seen, s) })

	err := m.Update(models.SOSSettings{
		SelectedSMSContacts: []models.SOSContact{{Name: "Mom", Phone: "5550000"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	// One delivery at subscribe time plus one for the update.
	require.Len(t, seen, 2)
	assert.Len(t, seen[1].SelectedSMSContacts, 1)

	// Round-trips through the persisted blob.
	var persisted models.SOSSettings
	require.NoError(t, json.Unmarshal(store.payload, &persisted))
	assert.Equal(t, "Mom", persisted.SelectedSMSContacts[0].Name)
}

func TestUpdateFailurePreservesCurrent(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	m := NewManager(store, StorageKey)

	err := m.Update(models.SOSSettings{
		SelectedSMSContacts: []models.SOSContact{{Name: "Mom", Phone: "5550000"}},
	})

	require.Error(t, err)
	assert.Empty(t, m.Current().SelectedSMSContacts)
}

func TestSubscribeDeliversCurrentImmediately(t *testing.T) {
	store := &memStore{}
	m := NewManager(store, StorageKey)
	require.NoError(t, m.Load())

	var got *models.SOSSettings
	m.Subscribe(func(s models.SOSSettings) { got = &s })

	require.NotNil(t, got)
	assert.NotEmpty(t, got.AvailableHelplines)
}
