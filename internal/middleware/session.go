package middleware

import (
	"context"
	"net/http"

	"sentinel/pkg/models"
)

// Session identifies the calling device. SOS must work without
// authentication, so an absent user header yields the offline sentinel
// instead of a 401.
type Session struct {
	UserID        string
	UserName      string
	DeviceToken   string
	Authenticated bool
}

type contextKey struct{}

// DeviceSession resolves the identification headers into a Session placed
// on the request context.
func DeviceSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := Session{
			UserID:        r.Header.Get("X-User-Id"),
			UserName:      r.Header.Get("X-User-Name"),
			DeviceToken:   r.Header.Get("X-Device-Token"),
			Authenticated: true,
		}

		if session.UserID == "" {
			session.UserID = models.OfflineUserID
			session.Authenticated = false
		}

		ctx := context.WithValue(r.Context(), contextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFrom returns the session attached by DeviceSession. Requests that
// bypassed the middleware get the offline sentinel.
func SessionFrom(r *http.Request) Session {
	if s, ok := r.Context().Value(contextKey{}).(Session); ok {
		return s
	}
	return Session{UserID: models.OfflineUserID}
}
