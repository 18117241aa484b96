package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nadzzz/parley/internal/intent"
)

// Intent names registered by NewDefaultTable.
const (
	IntentWeather         = "wit$get_weather"
	IntentDeviceFeature   = "control_device_feature"
	IntentCreateReminder  = "create_reminder"
	IntentCheckReminders  = "check_reminders"
	IntentSetAlarm        = "set_alarm"
	IntentSetTimer        = "set_timer"
	IntentStartNavigation = "start_navigation"
)

// NewDefaultTable registers a handler for every actuator present in a.
func NewDefaultTable(a Actuators) *Table {
	if a.Now == nil {
		a.Now = time.Now
	}
	t := NewTable()
	if a.Weather != nil {
		t.MustRegister(IntentWeather, Weather(a.Weather))
	}
	if a.Settings != nil {
		t.MustRegister(IntentDeviceFeature, DeviceToggle(a.Settings))
	}
	if a.Calendar != nil {
		t.MustRegister(IntentCreateReminder, CreateReminder(a.Calendar))
		t.MustRegister(IntentCheckReminders, LookupReminders(a.Calendar, a.Now))
	}
	if a.Scheduler != nil {
		t.MustRegister(IntentSetAlarm, SetAlarm(a.Scheduler, a.Now))
		t.MustRegister(IntentSetTimer, SetTimer(a.Scheduler))
	}
	if a.Maps != nil {
		t.MustRegister(IntentStartNavigation, Navigate(a.Maps))
	}
	return t
}

// Weather answers current-conditions questions for a resolved location.
func Weather(p WeatherProvider) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		loc, ok := in.Slot("location")
		if !ok || loc.Kind != intent.SlotLocation {
			return Result{}, missingSlot(in, "location", "Which city would you like the weather for?")
		}
		if !loc.Loc.HasCoords() {
			return Result{}, invalidSlot(in, "location", fmt.Sprintf("I couldn't find %s on the map.", loc.Loc.Name))
		}
		w, err := p.Current(ctx, loc.Loc)
		if err != nil {
			return Result{}, actuatorError(in, err)
		}
		return Result{
			DisplayText:     fmt.Sprintf("Weather: %s, %.0f°C", w.Condition, w.TemperatureC),
			ShouldSpeak:     true,
			ResumeListening: true,
		}, nil
	})
}

var featureAliases = map[string]Feature{
	"wifi":           FeatureWiFi,
	"wi-fi":          FeatureWiFi,
	"wi fi":          FeatureWiFi,
	"wireless":       FeatureWiFi,
	"bluetooth":      FeatureBluetooth,
	"location":       FeatureLocation,
	"gps":            FeatureLocation,
	"airplane mode":  FeatureAirplaneMode,
	"airplane":       FeatureAirplaneMode,
	"flight mode":    FeatureAirplaneMode,
	"do not disturb": FeatureDoNotDisturb,
	"dnd":            FeatureDoNotDisturb,
}

var featureNames = map[Feature]string{
	FeatureWiFi:         "WiFi",
	FeatureBluetooth:    "Bluetooth",
	FeatureLocation:     "Location",
	FeatureAirplaneMode: "Airplane mode",
	FeatureDoNotDisturb: "Do Not Disturb",
}

// ParseFeature resolves a spoken feature name.
func ParseFeature(s string) (Feature, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	f, ok := featureAliases[s]
	return f, ok
}

// DisplayName returns the user-facing name of f.
func (f Feature) DisplayName() string {
	if n, ok := featureNames[f]; ok {
		return n
	}
	return string(f)
}

type toggleAction int

const (
	toggleCheck toggleAction = iota
	toggleOn
	toggleOff
)

func parseToggle(in intent.Intent) toggleAction {
	for _, slot := range []string{"on_off", "action", "state"} {
		switch strings.ToLower(in.Text(slot)) {
		case "on", "enable", "activate", "turn on", "true":
			return toggleOn
		case "off", "disable", "deactivate", "turn off", "false":
			return toggleOff
		}
	}
	return toggleCheck
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// DeviceToggle reports a feature's state or opens its settings screen when
// the user asks for a different state.
func DeviceToggle(p SettingsPanel) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		raw := in.Text("feature")
		if raw == "" {
			return Result{}, missingSlot(in, "feature", "Which setting would you like to change?")
		}
		f, ok := ParseFeature(raw)
		if !ok {
			return Result{}, invalidSlot(in, "feature", fmt.Sprintf("I can't control %s yet.", raw))
		}

		current, err := p.Enabled(ctx, f)
		if err != nil {
			return Result{}, actuatorError(in, err)
		}

		act := parseToggle(in)
		if act == toggleCheck {
			return Result{
				DisplayText:     fmt.Sprintf("%s is %s", f.DisplayName(), onOff(current)),
				ShouldSpeak:     true,
				ResumeListening: true,
			}, nil
		}

		want := act == toggleOn
		if current == want {
			return Result{
				DisplayText:     fmt.Sprintf("%s is already %s", f.DisplayName(), onOff(current)),
				ShouldSpeak:     true,
				ResumeListening: true,
			}, nil
		}

		if err := p.OpenSettings(ctx, f); err != nil {
			return Result{}, actuatorError(in, err)
		}
		return Result{
			DisplayText: fmt.Sprintf("Opening %s settings so you can turn it %s.", f.DisplayName(), onOff(want)),
			ShouldSpeak: true,
		}, nil
	})
}

// ParseRecurrence resolves a spoken repetition phrase.
func ParseRecurrence(s string) (Recurrence, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "once", "none":
		return RecurNone, true
	case "daily", "every day", "each day":
		return RecurDaily, true
	case "weekly", "every week", "each week":
		return RecurWeekly, true
	case "monthly", "every month", "each month":
		return RecurMonthly, true
	case "yearly", "annually", "every year", "each year":
		return RecurYearly, true
	}
	return RecurNone, false
}

func coarseGrain(grain string) bool {
	switch grain {
	case "day", "week", "month", "quarter", "year":
		return true
	}
	return false
}

// grainEnd returns the end of the period of the given grain starting at from.
// Finer or unknown grains cover one day.
func grainEnd(from time.Time, grain string) time.Time {
	switch grain {
	case "week":
		return from.AddDate(0, 0, 7)
	case "month":
		return from.AddDate(0, 1, 0)
	case "quarter":
		return from.AddDate(0, 3, 0)
	case "year":
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}

// CreateReminder adds a one-shot, all-day or recurring calendar entry.
func CreateReminder(c Calendar) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		title := in.Text("reminder")
		if title == "" {
			title = in.Text("title")
		}
		if title == "" {
			return Result{}, missingSlot(in, "reminder", "What should I remind you about?")
		}
		dt, ok := in.Slot("datetime")
		if !ok || dt.Kind != intent.SlotDateTime {
			return Result{}, missingSlot(in, "datetime", "When should I remind you?")
		}
		rec, ok := ParseRecurrence(in.Text("recurrence"))
		if !ok {
			return Result{}, invalidSlot(in, "recurrence", "I can repeat reminders daily, weekly, monthly or yearly.")
		}

		r := Reminder{
			Title:      title,
			Start:      dt.Time,
			End:        dt.End,
			AllDay:     coarseGrain(dt.Grain),
			Recurrence: rec,
		}
		if r.AllDay {
			y, m, d := r.Start.Date()
			r.Start = time.Date(y, m, d, 0, 0, 0, 0, r.Start.Location())
			r.End = r.Start.AddDate(0, 0, 1)
		} else if r.End.IsZero() {
			r.End = r.Start.Add(time.Hour)
		}

		saved, err := c.Insert(ctx, r)
		if err != nil {
			return Result{}, actuatorError(in, err)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Reminder set: %s on %s", saved.Title, saved.Start.Format("Mon, Jan 2"))
		if !saved.AllDay {
			fmt.Fprintf(&sb, " at %s", saved.Start.Format(time.Kitchen))
		}
		if saved.Recurrence != RecurNone {
			fmt.Fprintf(&sb, ", repeating %s", saved.Recurrence)
		}
		sb.WriteString(".")
		return Result{DisplayText: sb.String(), ShouldSpeak: true, ResumeListening: true}, nil
	})
}

// LookupReminders lists reminders in the requested range, today by default.
func LookupReminders(c Calendar, now func() time.Time) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		var from, to time.Time
		dt, ok := in.Slot("datetime")
		switch {
		case ok && dt.IsInterval():
			from, to = dt.Time, dt.End
		case ok && dt.Kind == intent.SlotDateTime:
			y, m, d := dt.Time.Date()
			from = time.Date(y, m, d, 0, 0, 0, 0, dt.Time.Location())
			to = grainEnd(from, dt.Grain)
		default:
			n := now()
			y, m, d := n.Date()
			from = time.Date(y, m, d, 0, 0, 0, 0, n.Location())
			to = from.AddDate(0, 0, 1)
		}

		items, err := c.Between(ctx, from, to)
		if err != nil {
			return Result{}, actuatorError(in, err)
		}
		if len(items) == 0 {
			return Result{DisplayText: "You have no reminders for that time.", ShouldSpeak: true, ResumeListening: true}, nil
		}

		parts := make([]string, 0, len(items))
		for _, r := range items {
			when := r.Start.Format("Mon, Jan 2")
			if !r.AllDay {
				when += " at " + r.Start.Format(time.Kitchen)
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", r.Title, when))
		}
		noun := "reminders"
		if len(items) == 1 {
			noun = "reminder"
		}
		return Result{
			DisplayText:     fmt.Sprintf("You have %d %s: %s.", len(items), noun, strings.Join(parts, "; ")),
			ShouldSpeak:     true,
			ResumeListening: true,
		}, nil
	})
}

// SetAlarm schedules an alarm at the requested time.
func SetAlarm(s Scheduler, now func() time.Time) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		dt, ok := in.Slot("datetime")
		if !ok || dt.Kind != intent.SlotDateTime {
			return Result{}, missingSlot(in, "datetime", "What time should the alarm go off?")
		}
		if !dt.Time.After(now()) {
			return Result{}, invalidSlot(in, "datetime", "That time has already passed.")
		}
		a, err := s.SetAlarm(ctx, Alarm{At: dt.Time, Label: in.Text("label")})
		if err != nil {
			return Result{}, actuatorError(in, err)
		}
		return Result{
			DisplayText:     fmt.Sprintf("Alarm set for %s on %s.", a.At.Format(time.Kitchen), a.At.Format("Mon, Jan 2")),
			ShouldSpeak:     true,
			ResumeListening: true,
		}, nil
	})
}

// SetTimer starts a countdown for the requested duration.
func SetTimer(s Scheduler) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		dur, ok := in.Slot("duration")
		if !ok || dur.Kind != intent.SlotNumber {
			return Result{}, missingSlot(in, "duration", "How long should the timer be?")
		}
		if dur.Num <= 0 {
			return Result{}, invalidSlot(in, "duration", "The timer needs a duration longer than zero.")
		}
		d := time.Duration(dur.Num * float64(time.Second))
		tm, err := s.SetTimer(ctx, Timer{Duration: d, Label: in.Text("label")})
		if err != nil {
			return Result{}, actuatorError(in, err)
		}
		return Result{
			DisplayText:     fmt.Sprintf("Timer set for %s.", HumanDuration(tm.Duration)),
			ShouldSpeak:     true,
			ResumeListening: true,
		}, nil
	})
}

// HumanDuration renders d as "1 hour 5 minutes".
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	units := []struct {
		size time.Duration
		name string
	}{
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	var parts []string
	for _, u := range units {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		name := u.name
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, " ")
}

// Navigate hands the destination to the maps application.
func Navigate(m MapOpener) Handler {
	return HandlerFunc(func(ctx context.Context, in intent.Intent) (Result, error) {
		var dest intent.Location
		for _, slot := range []string{"destination", "location"} {
			v, ok := in.Slot(slot)
			if !ok {
				continue
			}
			switch v.Kind {
			case intent.SlotLocation:
				dest = v.Loc
			case intent.SlotString:
				dest = intent.Location{Name: v.Str}
			}
			if dest.Name != "" || dest.HasCoords() {
				break
			}
		}
		if dest.Name == "" && !dest.HasCoords() {
			return Result{}, missingSlot(in, "destination", "Where would you like to go?")
		}
		if err := m.Navigate(ctx, dest); err != nil {
			return Result{}, actuatorError(in, err)
		}
		name := dest.Name
		if name == "" {
			name = fmt.Sprintf("%.4f, %.4f", dest.Lat, dest.Long)
		}
		return Result{DisplayText: fmt.Sprintf("Starting navigation to %s.", name), ShouldSpeak: true}, nil
	})
}
