package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentinel/pkg/models"
)

type report struct {
	loc models.Location
	at  time.Time
}

// DeviceReports holds the positions devices push to the service. The same
// buffer backs two chain steps with different freshness windows: a tight one
// standing in for a high-accuracy read and a loose one for the fallback
// read.
type DeviceReports struct {
	mu     sync.RWMutex
	byUser map[string]report
	now    func() time.Time
}

func NewDeviceReports() *DeviceReports {
	return &DeviceReports{
		byUser: make(map[string]report),
		now:    time.Now,
	}
}

// Record stores the latest reading a device reported for a user.
func (d *DeviceReports) Record(userID string, loc models.Location) {
	if loc.IsZero() {
		return
	}
	d.mu.Lock()
	d.byUser[userID] = report{loc: loc, at: d.now()}
	d.mu.Unlock()
}

// Provider exposes the buffer as a chain step accepting readings no older
// than maxAge.
func (d *DeviceReports) Provider(name string, maxAge time.Duration) Provider {
	return &reportProvider{reports: d, name: name, maxAge: maxAge}
}

type reportProvider struct {
	reports *DeviceReports
	name    string
	maxAge  time.Duration
}

func (p *reportProvider) Name() string { return p.name }

func (p *reportProvider) Current(_ context.Context, userID string) (models.Location, error) {
	p.reports.mu.RLock()
	r, ok := p.reports.byUser[userID]
	p.reports.mu.RUnlock()

	if !ok {
		return models.Location{}, fmt.Errorf("no device report for user %s", userID)
	}
	if age := p.reports.now().Sub(r.at); age > p.maxAge {
		return models.Location{}, fmt.Errorf("device report for %s is stale (%s old)", userID, age.Round(time.Second))
	}
	return r.loc, nil
}
