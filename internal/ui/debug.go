package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/imageshelf/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
const debugPanelChrome = 4

// debugOverlay renders pipeline counters and recent events from the ring.
// Returns a hint when ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return HelpStyle.Render("Event ring disabled.")
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Pipeline Stats"))
	lines = append(lines, fmt.Sprintf("  Feed:       %d opened, %d errors, %d reconnects",
		stats[otel.KindFeedOpen], stats[otel.KindFeedError], stats[otel.KindFeedReconnect]))
	lines = append(lines, fmt.Sprintf("  Messages:   %d bad, %d clears",
		stats[otel.KindParseError], stats[otel.KindFeedClear]))
	lines = append(lines, fmt.Sprintf("  Saves:      %d started, %d complete, %d errors, %d conflicts",
		stats[otel.KindSaveStart], stats[otel.KindSaveComplete], stats[otel.KindSaveError], stats[otel.KindSaveConflict]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-20s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		if e.Attempt > 0 {
			line += fmt.Sprintf("  #%d", e.Attempt)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Negative durations from clock skew clamp to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// truncateRunes cuts s to at most n runes, appending "..." when cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("D") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
