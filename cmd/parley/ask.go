package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nadzzz/parley/internal/app"
	"github.com/nadzzz/parley/internal/conversation"
	"github.com/nadzzz/parley/internal/coordinator"
)

var (
	askListen bool
	askMute   bool
)

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [utterance...]",
		Short: "Run a single turn locally and print the conversation",
		Long: `Runs one turn through the full pipeline (classification, action or fallback,
speech) without starting any transport.

Examples:
  parley ask "what's the weather in Amman"
  parley ask --listen          # speak, then press Enter to finish`,
		RunE: runAsk,
	}
	cmd.Flags().BoolVarP(&askListen, "listen", "l", false, "capture the utterance from the microphone")
	cmd.Flags().BoolVar(&askMute, "mute", false, "do not speak the reply")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" && !askListen {
		return errors.New("nothing to ask: pass an utterance or --listen")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if askMute {
		cfg.Speech.Playback.Enabled = false
	}
	if askListen {
		cfg.Speech.Capture.Enabled = true
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if askListen {
		if _, err := a.Coordinator.ToggleMic(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("listening, press Enter to finish"))
		go finishOnEnter(os.Stdin, a.Coordinator)
	} else if err := a.Coordinator.Submit(text); err != nil {
		return err
	}

	snap, err := waitForIdle(ctx, a.Coordinator)
	if err != nil {
		a.Coordinator.Cancel()
		return err
	}
	printTranscript(cmd.OutOrStdout(), snap)
	return nil
}

// finishOnEnter presses the microphone button again once a line is read,
// which ends the utterance and leaves hands-free mode.
func finishOnEnter(r io.Reader, c *coordinator.Coordinator) {
	if _, err := bufio.NewReader(r).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return
	}
	if c.Snapshot().State == coordinator.AutoListening {
		_, _ = c.ToggleMic()
	}
}

// waitForIdle returns the first Idle snapshot. Call it only after a turn or
// listening session has started.
func waitForIdle(ctx context.Context, c *coordinator.Coordinator) (coordinator.Snapshot, error) {
	snaps, unsubscribe := c.Subscribe(16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return coordinator.Snapshot{}, ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return coordinator.Snapshot{}, coordinator.ErrClosed
			}
			if snap.State == coordinator.Idle {
				return snap, nil
			}
		}
	}
}

func printTranscript(w io.Writer, snap coordinator.Snapshot) {
	for _, t := range snap.Turns {
		who := color.CyanString("you")
		if t.Role == conversation.RoleAssistant {
			who = color.GreenString("parley")
		}
		fmt.Fprintf(w, "%s: %s\n", who, t.Text)
	}
	if snap.Alert != "" {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("!"), snap.Alert)
	}
}
