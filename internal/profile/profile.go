// Package profile exposes the signed-in user's preferences that shape a turn:
// how the assistant addresses them and how (or whether) it speaks.
package profile

import (
	"context"
	"sync"
)

// Profile holds per-user settings.
type Profile struct {
	DisplayName string `json:"display_name"`
	Voice       string `json:"voice,omitempty"`
	Language    string `json:"language,omitempty"`
	TTSDisabled bool   `json:"tts_disabled"`
}

// Source supplies the current profile.
type Source interface {
	Current(ctx context.Context) (Profile, error)
}

// Static is an in-memory Source seeded from configuration.
type Static struct {
	mu sync.RWMutex
	p  Profile
}

// NewStatic creates a Static source holding p.
func NewStatic(p Profile) *Static {
	return &Static{p: p}
}

// Current returns the stored profile.
func (s *Static) Current(context.Context) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p, nil
}

// Update replaces the stored profile.
func (s *Static) Update(p Profile) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}
