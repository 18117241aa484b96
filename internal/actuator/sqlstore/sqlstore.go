// Package sqlstore is the SQLite-backed calendar and alarm/timer actuator.
// It satisfies action.Calendar and action.Scheduler.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"

	"github.com/nadzzz/parley/internal/action"
)

// maxOccurrences bounds recurring-reminder expansion per row.
const maxOccurrences = 5000

// Store persists reminders, alarms and timers.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// Open connects to the SQLite database at path (":memory:" for an ephemeral
// store) and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "sqlstore"),
		loc:    time.Local,
		now:    time.Now,
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	var version string
	if err := db.GetContext(ctx, &version, "SELECT sqlite_version()"); err == nil {
		s.logger.Info("store opened", "path", path, "sqlite", version)
	}
	return s, nil
}

// WithLocation sets the time zone recurring reminders are expanded in.
func (s *Store) WithLocation(loc *time.Location) *Store {
	s.loc = loc
	return s
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

type reminderRow struct {
	ID         int64  `db:"id"`
	Title      string `db:"title"`
	StartAt    int64  `db:"start_at"`
	EndAt      int64  `db:"end_at"`
	AllDay     bool   `db:"all_day"`
	Recurrence string `db:"recurrence"`
	CreatedAt  int64  `db:"created_at"`
}

func (r reminderRow) reminder(loc *time.Location) action.Reminder {
	return action.Reminder{
		ID:         r.ID,
		Title:      r.Title,
		Start:      time.Unix(r.StartAt, 0).In(loc),
		End:        time.Unix(r.EndAt, 0).In(loc),
		AllDay:     r.AllDay,
		Recurrence: action.Recurrence(r.Recurrence),
	}
}

// Insert stores r and returns it with its ID assigned.
func (s *Store) Insert(ctx context.Context, r action.Reminder) (action.Reminder, error) {
	row := reminderRow{
		Title:      r.Title,
		StartAt:    r.Start.Unix(),
		EndAt:      r.End.Unix(),
		AllDay:     r.AllDay,
		Recurrence: string(r.Recurrence),
		CreatedAt:  s.now().Unix(),
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reminders (title, start_at, end_at, all_day, recurrence, created_at)
		VALUES (:title, :start_at, :end_at, :all_day, :recurrence, :created_at)`, row)
	if err != nil {
		return action.Reminder{}, fmt.Errorf("inserting reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return action.Reminder{}, fmt.Errorf("reminder id: %w", err)
	}
	row.ID = id
	s.logger.Info("reminder stored", "id", id, "recurrence", row.Recurrence)
	return row.reminder(s.loc), nil
}

// Between returns the occurrences starting in [from, to), ordered by start.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]action.Reminder, error) {
	var rows []reminderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, start_at, end_at, all_day, recurrence, created_at
		FROM reminders
		WHERE (recurrence = '' AND start_at >= ? AND start_at < ?)
		   OR (recurrence != '' AND start_at < ?)
		ORDER BY start_at`, from.Unix(), to.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("selecting reminders: %w", err)
	}

	out := make([]action.Reminder, 0, len(rows))
	for _, row := range rows {
		r := row.reminder(s.loc)
		if r.Recurrence == action.RecurNone {
			out = append(out, r)
			continue
		}
		out = append(out, expand(r, from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// expand lists the occurrences of a recurring reminder that start in [from, to).
// Each occurrence is computed from the original start so month-end dates do
// not drift.
func expand(r action.Reminder, from, to time.Time) []action.Reminder {
	length := r.End.Sub(r.Start)
	var out []action.Reminder
	for n := 0; n < maxOccurrences; n++ {
		var start time.Time
		switch r.Recurrence {
		case action.RecurDaily:
			start = r.Start.AddDate(0, 0, n)
		case action.RecurWeekly:
			start = r.Start.AddDate(0, 0, 7*n)
		case action.RecurMonthly:
			start = r.Start.AddDate(0, n, 0)
		case action.RecurYearly:
			start = r.Start.AddDate(n, 0, 0)
		default:
			return out
		}
		if !start.Before(to) {
			break
		}
		if start.Before(from) {
			continue
		}
		occ := r
		occ.Start = start
		occ.End = start.Add(length)
		out = append(out, occ)
	}
	return out
}

type alarmRow struct {
	ID        int64  `db:"id"`
	At        int64  `db:"at"`
	Label     string `db:"label"`
	CreatedAt int64  `db:"created_at"`
}

// SetAlarm stores a.
func (s *Store) SetAlarm(ctx context.Context, a action.Alarm) (action.Alarm, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms (at, label, created_at) VALUES (?, ?, ?)`,
		a.At.Unix(), a.Label, s.now().Unix())
	if err != nil {
		return action.Alarm{}, fmt.Errorf("inserting alarm: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return action.Alarm{}, fmt.Errorf("alarm id: %w", err)
	}
	s.logger.Info("alarm set", "id", a.ID, "at", a.At)
	return a, nil
}

// Alarms lists alarms ringing at or after since, soonest first.
func (s *Store) Alarms(ctx context.Context, since time.Time) ([]action.Alarm, error) {
	var rows []alarmRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, at, label, created_at FROM alarms WHERE at >= ? ORDER BY at`, since.Unix()); err != nil {
		return nil, fmt.Errorf("selecting alarms: %w", err)
	}
	out := make([]action.Alarm, len(rows))
	for i, row := range rows {
		out[i] = action.Alarm{ID: row.ID, At: time.Unix(row.At, 0).In(s.loc), Label: row.Label}
	}
	return out, nil
}

type timerRow struct {
	ID         int64  `db:"id"`
	DurationMS int64  `db:"duration_ms"`
	Label      string `db:"label"`
	FiresAt    int64  `db:"fires_at"`
	CreatedAt  int64  `db:"created_at"`
}

// SetTimer stores t, firing t.Duration from now.
func (s *Store) SetTimer(ctx context.Context, t action.Timer) (action.Timer, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO timers (duration_ms, label, fires_at, created_at) VALUES (?, ?, ?, ?)`,
		t.Duration.Milliseconds(), t.Label, now.Add(t.Duration).Unix(), now.Unix())
	if err != nil {
		return action.Timer{}, fmt.Errorf("inserting timer: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return action.Timer{}, fmt.Errorf("timer id: %w", err)
	}
	s.logger.Info("timer set", "id", t.ID, "duration", t.Duration)
	return t, nil
}

// Timers lists timers that have not fired by now, soonest first.
func (s *Store) Timers(ctx context.Context) ([]action.Timer, error) {
	var rows []timerRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, duration_ms, label, fires_at, created_at FROM timers WHERE fires_at > ? ORDER BY fires_at`,
		s.now().Unix()); err != nil {
		return nil, fmt.Errorf("selecting timers: %w", err)
	}
	out := make([]action.Timer, len(rows))
	for i, row := range rows {
		out[i] = action.Timer{ID: row.ID, Duration: time.Duration(row.DurationMS) * time.Millisecond, Label: row.Label}
	}
	return out, nil
}
