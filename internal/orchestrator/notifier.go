package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskloom/taskloom/internal/event"
)

// Notifier receives ordered progress notifications from a run. Percent is
// 0-100, or negative when no meaningful percentage exists for the
// milestone. Implementations must not block for long; the engine calls
// them inline.
type Notifier interface {
	Notify(message string, percent float64)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string, percent float64)

func (f NotifierFunc) Notify(message string, percent float64) { f(message, percent) }

// NopNotifier discards all notifications.
func NopNotifier() Notifier {
	return NotifierFunc(func(string, float64) {})
}

// BusNotifier publishes each notification as a ProgressEvent so any number
// of bus subscribers can observe one run.
func BusNotifier(bus *event.Bus) Notifier {
	return NotifierFunc(func(message string, percent float64) {
		bus.Publish(event.ProgressEvent{
			Message:   message,
			Percent:   percent,
			Timestamp: time.Now(),
		})
	})
}

// ---- console notifier ----

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	percentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ConsoleNotifier writes progress lines to stderr, styled with lipgloss.
// Output goes to stderr so piped stdout carries only the final summary.
func ConsoleNotifier() Notifier {
	return NotifierFunc(func(message string, percent float64) {
		line := progressStyle.Render("• " + message)
		if percent >= 0 {
			line += " " + percentStyle.Render(fmt.Sprintf("(%.0f%%)", percent))
		}
		fmt.Fprintln(os.Stderr, line)
	})
}

// multiNotifier fans one notification out to several notifiers.
type multiNotifier []Notifier

func (m multiNotifier) Notify(message string, percent float64) {
	for _, n := range m {
		n.Notify(message, percent)
	}
}

// MultiNotifier combines notifiers; nil entries are skipped.
func MultiNotifier(notifiers ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
