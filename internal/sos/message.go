package sos

import (
	"fmt"
	"strings"
	"time"

	"sentinel/pkg/models"
)

const (
	locationUnavailable = "Location not available"
	timeUnavailable     = "Time not available"
)

// FormatMessage renders the outbound SOS body. {LOCATION} becomes the
// human-readable address when present, otherwise coordinates fixed to six
// decimals, otherwise a placeholder. {TIMESTAMP} becomes the localized
// date/time.
func FormatMessage(template string, loc *models.Location, ts time.Time) string {
	location := locationUnavailable
	if loc != nil {
		if loc.Address != "" {
			location = loc.Address
		} else if !loc.IsZero() {
			location = fmt.Sprintf("Lat: %.6f, Lng: %.6f", loc.Latitude, loc.Longitude)
		}
	}

	timestamp := timeUnavailable
	if !ts.IsZero() {
		timestamp = ts.Format("02 Jan 2006, 15:04:05")
	}

	out := strings.ReplaceAll(template, "{LOCATION}", location)
	return strings.ReplaceAll(out, "{TIMESTAMP}", timestamp)
}
