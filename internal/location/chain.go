package location

import (
	"context"
	"log"
	"sync"

	"sentinel/pkg/models"
)

// Provider supplies a best-effort position for a user. It may fail or
// return stale data.
type Provider interface {
	Name() string
	Current(ctx context.Context, userID string) (models.Location, error)
}

// LastKnownStore reads the position previously persisted for a user.
// Satisfied by store.Client.
type LastKnownStore interface {
	LastKnownLocation(ctx context.Context, userID string) (*models.Location, error)
}

// Chain walks the fallback sources in order, first success wins. It never
// returns an error, the terminal fallback is the zero location.
type Chain struct {
	primary  Provider
	fallback Provider
	store    LastKnownStore

	mu     sync.Mutex
	cached *models.Location
}

func NewChain(primary, fallback Provider, store LastKnownStore) *Chain {
	return &Chain{primary: primary, fallback: fallback, store: store}
}

// Acquire returns some location, always. The store step is only consulted
// when a real user session exists.
func (c *Chain) Acquire(ctx context.Context, userID string) models.Location {
	if loc, ok := c.try(ctx, c.primary, userID); ok {
		c.Remember(loc)
		return loc
	}

	if loc, ok := c.try(ctx, c.fallback, userID); ok {
		c.Remember(loc)
		return loc
	}

	c.mu.Lock()
	cached := c.cached
	c.mu.Unlock()
	if cached != nil {
		log.Printf("📍 Using cached location for %s", userID)
		return *cached
	}

	if c.store != nil && userID != "" && userID != models.OfflineUserID {
		if loc, err := c.store.LastKnownLocation(ctx, userID); err == nil && loc != nil {
			log.Printf("📍 Using stored last-known location for %s", userID)
			return *loc
		}
	}

	log.Printf("⚠️  No location source available for %s, falling back to zero", userID)
	return models.Location{}
}

// Remember caches the most recent good reading for the in-memory fallback
// step. Fed by acquisitions and live-tracking pings.
func (c *Chain) Remember(loc models.Location) {
	if loc.IsZero() {
		return
	}
	c.mu.Lock()
	c.cached = &loc
	c.mu.Unlock()
}

// try shields the chain from a provider that errors or panics.
func (c *Chain) try(ctx context.Context, p Provider, userID string) (loc models.Location, ok bool) {
	if p == nil {
		return models.Location{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  Location provider '%s' panicked: %v", p.Name(), r)
			ok = false
		}
	}()

	loc, err := p.Current(ctx, userID)
	if err != nil {
		log.Printf("⚠️  Location provider '%s' failed: %v", p.Name(), err)
		return models.Location{}, false
	}
	if loc.IsZero() {
		return models.Location{}, false
	}
	return loc, true
}
