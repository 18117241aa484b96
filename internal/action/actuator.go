package action

import (
	"context"
	"time"

	"github.com/nadzzz/parley/internal/intent"
)

// Feature is a device setting the assistant can query or toggle.
type Feature string

const (
	FeatureWiFi         Feature = "wifi"
	FeatureBluetooth    Feature = "bluetooth"
	FeatureLocation     Feature = "location"
	FeatureAirplaneMode Feature = "airplane_mode"
	FeatureDoNotDisturb Feature = "do_not_disturb"
)

// SettingsPanel reads device feature state and opens the matching settings
// screen. The assistant never flips a setting itself.
type SettingsPanel interface {
	Enabled(ctx context.Context, f Feature) (bool, error)
	OpenSettings(ctx context.Context, f Feature) error
}

// Recurrence is how often a reminder repeats.
type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
	RecurYearly  Recurrence = "yearly"
)

// Reminder is a calendar entry.
type Reminder struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	AllDay     bool       `json:"all_day"`
	Recurrence Recurrence `json:"recurrence,omitempty"`
}

// Calendar stores reminders.
type Calendar interface {
	Insert(ctx context.Context, r Reminder) (Reminder, error)

	// Between returns occurrences starting in [from, to), recurring reminders
	// expanded, ordered by start time.
	Between(ctx context.Context, from, to time.Time) ([]Reminder, error)
}

// Alarm rings at a wall-clock time.
type Alarm struct {
	ID    int64     `json:"id"`
	At    time.Time `json:"at"`
	Label string    `json:"label,omitempty"`
}

// Timer rings after a duration.
type Timer struct {
	ID       int64         `json:"id"`
	Duration time.Duration `json:"duration"`
	Label    string        `json:"label,omitempty"`
}

// Scheduler sets alarms and timers.
type Scheduler interface {
	SetAlarm(ctx context.Context, a Alarm) (Alarm, error)
	SetTimer(ctx context.Context, t Timer) (Timer, error)
}

// MapOpener starts turn-by-turn navigation to a destination.
type MapOpener interface {
	Navigate(ctx context.Context, dest intent.Location) error
}

// Conditions is a current weather observation.
type Conditions struct {
	Condition    string  `json:"condition"`
	TemperatureC float64 `json:"temperature_c"`
}

// WeatherProvider reports current conditions at a location.
type WeatherProvider interface {
	Current(ctx context.Context, loc intent.Location) (Conditions, error)
}

// Actuators bundles the effect interfaces the default handlers need. A nil
// actuator leaves its intents unregistered.
type Actuators struct {
	Settings  SettingsPanel
	Calendar  Calendar
	Scheduler Scheduler
	Maps      MapOpener
	Weather   WeatherProvider

	// Now defaults to time.Now.
	Now func() time.Time
}
