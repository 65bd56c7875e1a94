package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/imageshelf/internal/feed"
)

// markWidth is the number of cells reserved for the save marker column.
const markWidth = 2

// RenderFeed renders the item list, scrolled so the cursor stays visible.
// marks maps an item's ImageURL to its already-rendered save marker.
func RenderFeed(items []feed.Item, cursor int, width, height int, marks map[string]string, showParams bool) string {
	if len(items) == 0 {
		return HelpStyle.Render("Waiting for images. Press space to play or pause.")
	}

	if height < 1 {
		height = 1
	}
	offset := calcScrollOffset(len(items), cursor, height)

	var b strings.Builder
	for i := offset; i < len(items) && i-offset < height; i++ {
		item := items[i]
		b.WriteString(renderItemLine(item, marks[item.ImageURL], i == cursor, width, showParams))
		b.WriteString("\n")
	}
	return b.String()
}

// calcScrollOffset returns the first visible index keeping cursor on screen.
func calcScrollOffset(n, cursor, height int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		cursor = n - 1
	}
	if cursor >= height {
		return cursor - height + 1
	}
	return 0
}

// renderItemLine renders one row: marker, prompt, then parameters.
func renderItemLine(item feed.Item, mark string, selected bool, width int, showParams bool) string {
	prompt := strings.Join(strings.Fields(item.Prompt), " ")
	if prompt == "" {
		prompt = "(no prompt)"
	}

	meta := ""
	if showParams {
		meta = itemParams(item)
	}

	// 2 cells of padding from the row style
	avail := width - 2 - markWidth
	if meta != "" {
		avail -= runewidth.StringWidth(meta) + 1
	}
	if avail < 10 {
		avail = 10
		meta = ""
	}
	prompt = runewidth.Truncate(prompt, avail, "…")

	if mark == "" {
		mark = " "
	}
	mark = mark + strings.Repeat(" ", max(0, markWidth-lipgloss.Width(mark)))

	line := mark + prompt
	if meta != "" {
		pad := avail - runewidth.StringWidth(prompt) + 1
		line += strings.Repeat(" ", pad) + ParamText.Render(meta)
	}

	if selected {
		return SelectedItem.Width(width).Render(line)
	}
	return NormalItem.Render(line)
}

// itemParams summarizes the generation parameters worth showing inline.
func itemParams(item feed.Item) string {
	var parts []string
	if m := item.Param("model"); m != "" {
		parts = append(parts, m)
	}
	w, h := item.Param("width"), item.Param("height")
	if w != "" && h != "" {
		parts = append(parts, w+"×"+h)
	}
	if item.Seed != nil {
		parts = append(parts, fmt.Sprintf("seed %d", *item.Seed))
	}
	return strings.Join(parts, " · ")
}

// renderHeader renders the status badge with buffer occupancy.
func renderHeader(status string, count, capacity, attempts, width int) string {
	badge := statusBadge(status)
	text := fmt.Sprintf("imageshelf  %d/%d", count, capacity)
	if status == feed.StatusReconnecting && attempts > 0 {
		text += fmt.Sprintf("  retry #%d", attempts)
	}
	return lipgloss.NewStyle().Width(width).Render(badge+Header.Render(text)) + "\n"
}

func statusBadge(status string) string {
	label := strings.ToUpper(status)
	if label == "" {
		label = strings.ToUpper(feed.StatusIdle)
	}
	switch status {
	case feed.StatusLive:
		return BadgeLive.Render(label)
	case feed.StatusConnecting, feed.StatusReconnecting:
		return BadgePending.Render(label)
	default:
		return BadgePaused.Render(label)
	}
}

// RenderStatusBar renders the bottom bar: position, key hints, and the most
// recent notice or warning.
func RenderStatusBar(cursor, total, width int, notice, warning string) string {
	pos := "0/0"
	if total > 0 {
		pos = fmt.Sprintf("%d/%d", cursor+1, total)
	}
	keys := StatusBarKey.Render("space") + StatusBarText.Render(":play/pause ") +
		StatusBarKey.Render("s") + StatusBarText.Render(":save ") +
		StatusBarKey.Render("c") + StatusBarText.Render(":clear ") +
		StatusBarKey.Render("q") + StatusBarText.Render(":quit")

	text := pos + "  " + keys
	switch {
	case notice != "":
		text += "  " + notice
	case warning != "":
		text += "  " + StatusBarWarn.Render(runewidth.Truncate(warning, max(10, width/3), "…"))
	}
	return StatusBar.Width(width).Render(text)
}
