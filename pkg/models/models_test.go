package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocationMapLink(t *testing.T) {
	assert.Equal(t, "", Location{}.MapLink())
	assert.Equal(t,
		"https://maps.google.com/?q=12.971600,77.594600",
		Location{Latitude: 12.9716, Longitude: 77.5946}.MapLink())
}

func TestLocalAlertIDs(t *testing.T) {
	id := NewLocalAlertID(time.UnixMilli(1700000000000))

	assert.Equal(t, "local_1700000000000", id)
	assert.True(t, IsLocalAlertID(id))
	assert.False(t, IsLocalAlertID("fire-abc123"))
}
