package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_PlaceholderIsReplacedInPlace(t *testing.T) {
	l := NewLog()
	user := l.Append(RoleUser, "hi")
	ph := l.AppendPlaceholder()
	require.True(t, ph.Pending)
	require.Equal(t, 2, l.Len())

	resolved, err := l.Resolve(ph.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, ph.ID, resolved.ID)
	assert.False(t, resolved.Pending)

	turns := l.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, user.ID, turns[0].ID)
	assert.Equal(t, "hello", turns[1].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
}

func TestLog_ResolveErrors(t *testing.T) {
	l := NewLog()
	u := l.Append(RoleUser, "hi")

	_, err := l.Resolve("missing", "x")
	assert.ErrorIs(t, err, ErrTurnNotFound)

	_, err = l.Resolve(u.ID, "x")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestLog_RemovePendingOnlyTouchesPlaceholders(t *testing.T) {
	l := NewLog()
	u := l.Append(RoleUser, "hi")
	ph := l.AppendPlaceholder()

	assert.False(t, l.RemovePending(u.ID))
	assert.True(t, l.RemovePending(ph.ID))
	assert.False(t, l.RemovePending(ph.ID))
	assert.Equal(t, 1, l.Len())
}

func TestLog_LastAssistantAndBefore(t *testing.T) {
	l := NewLog()
	_, ok := l.LastAssistant()
	assert.False(t, ok)

	l.Append(RoleUser, "one")
	l.Append(RoleAssistant, "two")
	u := l.Append(RoleUser, "three")
	ph := l.AppendPlaceholder()

	last, ok := l.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, ph.ID, last.ID)
	assert.True(t, last.Pending)

	prior := l.Before(u.ID)
	require.Len(t, prior, 2)
	assert.Equal(t, "one", prior[0].Text)
	assert.Equal(t, "two", prior[1].Text)

	all := l.Before("unknown")
	assert.Len(t, all, 3, "pending placeholder is skipped")
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	l := NewLog()
	l.Append(RoleUser, "hi")
	snap := l.Snapshot()
	snap[0].Text = "changed"
	assert.Equal(t, "hi", l.Snapshot()[0].Text)

	l.Reset()
	assert.Zero(t, l.Len())
}
