// Package maps opens turn-by-turn directions through a maps URL. It satisfies
// action.MapOpener.
package maps

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nadzzz/parley/internal/actuator"
	"github.com/nadzzz/parley/internal/intent"
)

// DefaultBaseURL is the Google Maps directions endpoint.
const DefaultBaseURL = "https://www.google.com/maps/dir/"

// Opener builds a directions link and hands it to a Launcher.
type Opener struct {
	baseURL  string
	launcher actuator.Launcher
}

// New creates an Opener. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, launcher actuator.Launcher) *Opener {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Opener{baseURL: baseURL, launcher: launcher}
}

// DirectionsURL returns the link for navigating to dest.
func (o *Opener) DirectionsURL(dest intent.Location) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("travelmode", "driving")
	q.Set("dir_action", "navigate")
	if dest.HasCoords() {
		q.Set("destination", fmt.Sprintf("%f,%f", dest.Lat, dest.Long))
	} else {
		q.Set("destination", strings.TrimSpace(dest.Name))
	}
	return o.baseURL + "?" + q.Encode()
}

// Navigate opens directions to dest.
func (o *Opener) Navigate(ctx context.Context, dest intent.Location) error {
	return o.launcher.Launch(ctx, o.DirectionsURL(dest))
}
