// Package actuator holds the reference platform actuators the daemon ships
// with. Each subpackage satisfies one of the action package's interfaces.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Launcher opens a URI (settings screen, maps link) on the host.
type Launcher interface {
	Launch(ctx context.Context, uri string) error
}

// NewLauncher returns a CommandLauncher for a non-empty command line, or a
// LogLauncher otherwise.
func NewLauncher(command string) Launcher {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &LogLauncher{}
	}
	return &CommandLauncher{Name: fields[0], Args: fields[1:]}
}

// CommandLauncher runs an external program (e.g., xdg-open) with the URI as
// its last argument.
type CommandLauncher struct {
	Name string
	Args []string
}

// Launch runs the command and waits for it to exit.
func (l *CommandLauncher) Launch(ctx context.Context, uri string) error {
	args := append(append([]string{}, l.Args...), uri)
	out, err := exec.CommandContext(ctx, l.Name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launching %s %s: %w (%s)", l.Name, uri, err, strings.TrimSpace(string(out)))
	}
	slog.Debug("launched", "command", l.Name, "uri", uri)
	return nil
}

// LogLauncher records launches instead of performing them. It is used on
// headless hosts and in tests.
type LogLauncher struct {
	mu       sync.Mutex
	launched []string
}

// Launch logs uri.
func (l *LogLauncher) Launch(_ context.Context, uri string) error {
	l.mu.Lock()
	l.launched = append(l.launched, uri)
	l.mu.Unlock()
	slog.Info("launch requested", "uri", uri)
	return nil
}

// Launched returns every URI passed to Launch, oldest first.
func (l *LogLauncher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launched...)
}
