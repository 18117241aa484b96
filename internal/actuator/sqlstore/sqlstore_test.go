package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/parley/internal/action"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.WithLocation(time.UTC)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestMigrate_IsRepeatable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestReminders_InsertAndBetween(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	dentist, err := s.Insert(ctx, action.Reminder{
		Title: "dentist",
		Start: day.Add(10 * time.Hour),
		End:   day.Add(11 * time.Hour),
	})
	require.NoError(t, err)
	assert.NotZero(t, dentist.ID)

	_, err = s.Insert(ctx, action.Reminder{
		Title:      "standup",
		Start:      time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC),
		Recurrence: action.RecurDaily,
	})
	require.NoError(t, err)

	_, err = s.Insert(ctx, action.Reminder{
		Title:  "holiday",
		Start:  day.AddDate(0, 0, 1),
		End:    day.AddDate(0, 0, 2),
		AllDay: true,
	})
	require.NoError(t, err)

	got, err := s.Between(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "standup", got[0].Title)
	assert.Equal(t, day.Add(9*time.Hour), got[0].Start)
	assert.Equal(t, 15*time.Minute, got[0].End.Sub(got[0].Start))
	assert.Equal(t, "dentist", got[1].Title)

	week, err := s.Between(ctx, day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, week, 9, "seven standups, the dentist and the holiday")
	assert.True(t, week[len(week)-1].Start.Before(day.AddDate(0, 0, 7)))
}

func TestExpand_MonthlyAndYearly(t *testing.T) {
	start := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	r := action.Reminder{Title: "rent", Start: start, End: start.Add(time.Hour), Recurrence: action.RecurMonthly}

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	occ := expand(r, from, from.AddDate(0, 3, 0))
	require.Len(t, occ, 3)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), occ[2].Start)

	r.Recurrence = action.RecurYearly
	occ = expand(r, from, from.AddDate(1, 0, 0))
	require.Len(t, occ, 1)
	assert.Equal(t, 2026, occ[0].Start.Year())
}

func TestAlarmsAndTimers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	a, err := s.SetAlarm(ctx, action.Alarm{At: at, Label: "gym"})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	alarms, err := s.Alarms(ctx, s.now())
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, at, alarms[0].At)
	assert.Equal(t, "gym", alarms[0].Label)

	tm, err := s.SetTimer(ctx, action.Timer{Duration: 90 * time.Second, Label: "tea"})
	require.NoError(t, err)
	assert.NotZero(t, tm.ID)

	timers, err := s.Timers(ctx)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, 90*time.Second, timers[0].Duration)

	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC) }
	timers, err = s.Timers(ctx)
	require.NoError(t, err)
	assert.Empty(t, timers)
}
