package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to a terminal, optionally ringing
// the bell for signals.
type TerminalNotifier struct {
	mu           sync.Mutex
	out          io.Writer
	enabled      bool
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier prints to stdout.
func NewTerminalNotifier() *TerminalNotifier {
	return NewTerminalNotifierTo(os.Stdout)
}

// NewTerminalNotifierTo prints to w.
func NewTerminalNotifierTo(w io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		out:          w,
		enabled:      true,
		bellEnabled:  true,
		colorEnabled: !color.NoColor,
	}
}

// SetBellEnabled toggles the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetColorEnabled toggles colored output.
func (tn *TerminalNotifier) SetColorEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.colorEnabled = enabled
}

// SetEnabled toggles the channel.
func (tn *TerminalNotifier) SetEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.enabled = enabled
}

// Name returns the channel name.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled reports whether the channel prints.
func (tn *TerminalNotifier) IsEnabled() bool {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.enabled
}

// Send prints n.
func (tn *TerminalNotifier) Send(_ context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if !tn.enabled {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if tn.bellEnabled && n.Type == NotificationSignal {
		fmt.Fprint(tn.out, "\a")
	}
	_, err := fmt.Fprintln(tn.out, FormatNotification(n, tn.colorEnabled))
	return err
}

// FormatNotification renders n on one header line followed by its message.
func FormatNotification(n Notification, colorEnabled bool) string {
	var indicator string
	var c *color.Color

	switch n.Type {
	case NotificationSignal:
		indicator = "SIGNAL"
		c = color.New(color.FgCyan, color.Bold)
		if dir, _ := n.Data["direction"].(string); dir == "BUY" {
			c = color.New(color.FgGreen, color.Bold)
		} else if dir == "SELL" {
			c = color.New(color.FgRed, color.Bold)
		}
	case NotificationError:
		indicator = "ERROR"
		c = color.New(color.FgRed)
	default:
		indicator = "INFO"
		c = color.New(color.FgWhite)
	}

	header := fmt.Sprintf("[%s] %s | %s", n.Timestamp.Format("15:04:05"), indicator, n.Title)
	if colorEnabled {
		c.EnableColor()
		header = c.Sprint(header)
	} else {
		c.DisableColor()
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, line := range strings.Split(n.Message, "\n") {
		if line == "" {
			continue
		}
		sb.WriteString("\n    ")
		sb.WriteString(line)
	}
	return sb.String()
}
