// Package device is a settings-panel actuator backed by a configured feature
// state table. It satisfies action.SettingsPanel.
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/nadzzz/parley/internal/action"
	"github.com/nadzzz/parley/internal/actuator"
)

// settingsURIs maps features to the settings screen that controls them.
var settingsURIs = map[action.Feature]string{
	action.FeatureWiFi:         "settings://network/wifi",
	action.FeatureBluetooth:    "settings://bluetooth",
	action.FeatureLocation:     "settings://privacy/location",
	action.FeatureAirplaneMode: "settings://network/airplane-mode",
	action.FeatureDoNotDisturb: "settings://notifications/do-not-disturb",
}

// Panel reports feature state from an in-memory table and opens settings
// screens through a Launcher.
type Panel struct {
	mu       sync.RWMutex
	state    map[action.Feature]bool
	launcher actuator.Launcher
}

// NewPanel creates a Panel with the given initial states, keyed by spoken
// feature name ("wifi", "bluetooth", ...). Unknown names are ignored.
func NewPanel(initial map[string]bool, launcher actuator.Launcher) *Panel {
	p := &Panel{state: make(map[action.Feature]bool), launcher: launcher}
	for name, on := range initial {
		if f, ok := action.ParseFeature(name); ok {
			p.state[f] = on
		}
	}
	return p
}

// Enabled reports whether f is on.
func (p *Panel) Enabled(_ context.Context, f action.Feature) (bool, error) {
	if _, ok := settingsURIs[f]; !ok {
		return false, fmt.Errorf("unknown feature %q", f)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state[f], nil
}

// Set records the state of f as reported by the host.
func (p *Panel) Set(f action.Feature, on bool) {
	p.mu.Lock()
	p.state[f] = on
	p.mu.Unlock()
}

// OpenSettings launches the settings screen for f.
func (p *Panel) OpenSettings(ctx context.Context, f action.Feature) error {
	uri, ok := settingsURIs[f]
	if !ok {
		return fmt.Errorf("unknown feature %q", f)
	}
	return p.launcher.Launch(ctx, uri)
}
