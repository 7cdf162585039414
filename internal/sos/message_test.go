package sos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sentinel/pkg/models"
)

func TestFormatMessagePrefersAddress(t *testing.T) {
	loc := &models.Location{
		Latitude:  12.9716,
		Longitude: 77.5946,
		Address:   "MG Road, Bengaluru",
	}
	ts := time.Date(2026, 3, 15, 10, 30, 45, 0, time.UTC)

	out := FormatMessage("At {LOCATION} on {TIMESTAMP}", loc, ts)

	assert.Equal(t, "At MG Road, Bengaluru on 15 Mar 2026, 10:30:45", out)
}

func TestFormatMessageFallsBackToCoordinates(t *testing.T) {
	loc := &models.Location{Latitude: 12.9716, Longitude: 77.5946}

	out := FormatMessage("{LOCATION}", loc, time.Time{})

	assert.Equal(t, "Lat: 12.971600, Lng: 77.594600", out)
}

func TestFormatMessagePlaceholdersWhenNothingKnown(t *testing.T) {
	out := FormatMessage("Location: {LOCATION}\nTime: {TIMESTAMP}", nil, time.Time{})

	assert.Contains(t, out, "Location: Location not available")
	assert.Contains(t, out, "Time: Time not available")
}

func TestFormatMessageZeroCoordinatesAreUnavailable(t *testing.T) {
	out := FormatMessage("{LOCATION}", &models.Location{}, time.Time{})

	assert.Equal(t, "Location not available", out)
}
