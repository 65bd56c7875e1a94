package ui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/imageshelf/internal/feed"
)

func TestCalcScrollOffset(t *testing.T) {
	tests := []struct {
		n, cursor, height, want int
	}{
		{0, 0, 10, 0},
		{5, 2, 10, 0},
		{20, 9, 10, 0},
		{20, 10, 10, 1},
		{20, 19, 10, 10},
		{20, 50, 10, 10},
		{20, -1, 10, 0},
	}
	for _, tt := range tests {
		if got := calcScrollOffset(tt.n, tt.cursor, tt.height); got != tt.want {
			t.Errorf("calcScrollOffset(%d, %d, %d) = %d, want %d", tt.n, tt.cursor, tt.height, got, tt.want)
		}
	}
}

func TestRenderFeedEmpty(t *testing.T) {
	out := RenderFeed(nil, 0, 80, 10, nil, true)
	if !strings.Contains(out, "Waiting for images") {
		t.Errorf("empty feed rendered %q", out)
	}
}

func TestRenderFeedScrollsToCursor(t *testing.T) {
	var names []string
	for i := 0; i < 10; i++ {
		names = append(names, string(rune('a'+i)))
	}
	items := testItems(names...)

	out := RenderFeed(items, 9, 80, 3, nil, false)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("rendered %d lines, want 3", len(lines))
	}
	if !strings.Contains(out, "prompt j") || strings.Contains(out, "prompt a") {
		t.Errorf("window should end at the cursor:\n%s", out)
	}
}

func TestRenderItemLineTruncatesToWidth(t *testing.T) {
	item := feed.Item{
		ImageURL: "https://img.example/x.png",
		Prompt:   strings.Repeat("東京の夜景 ", 20),
		Params: map[string]json.RawMessage{
			"model":  json.RawMessage(`"flux"`),
			"width":  json.RawMessage(`1024`),
			"height": json.RawMessage(`768`),
		},
	}
	for _, width := range []int{40, 60, 100} {
		line := renderItemLine(item, "", false, width, true)
		if w := lipgloss.Width(line); w > width {
			t.Errorf("width %d: line is %d cells", width, w)
		}
	}

	line := renderItemLine(item, "", false, 100, true)
	if !strings.Contains(line, "…") {
		t.Error("long prompt should be truncated with an ellipsis")
	}
	if !strings.Contains(line, "flux") || !strings.Contains(line, "1024×768") {
		t.Errorf("params missing from %q", line)
	}
}

func TestRenderItemLineNoPrompt(t *testing.T) {
	line := renderItemLine(feed.Item{ImageURL: "u"}, "", false, 80, false)
	if !strings.Contains(line, "(no prompt)") {
		t.Errorf("line = %q", line)
	}
}

func TestItemParams(t *testing.T) {
	seed := int64(42)
	item := feed.Item{
		Seed: &seed,
		Params: map[string]json.RawMessage{
			"model": json.RawMessage(`"turbo"`),
			"width": json.RawMessage(`512`),
		},
	}
	// height missing: dimensions omitted
	if got, want := itemParams(item), "turbo · seed 42"; got != want {
		t.Errorf("itemParams = %q, want %q", got, want)
	}
	if got := itemParams(feed.Item{}); got != "" {
		t.Errorf("itemParams(empty) = %q", got)
	}
}

func TestStatusBadge(t *testing.T) {
	for _, status := range []string{feed.StatusLive, feed.StatusPaused, feed.StatusConnecting, feed.StatusReconnecting} {
		if got := statusBadge(status); !strings.Contains(got, strings.ToUpper(status)) {
			t.Errorf("statusBadge(%q) = %q", status, got)
		}
	}
	if got := statusBadge(""); !strings.Contains(got, "IDLE") {
		t.Errorf("statusBadge(\"\") = %q", got)
	}
}

func TestRenderHeaderShowsRetry(t *testing.T) {
	out := renderHeader(feed.StatusReconnecting, 3, 50, 2, 80)
	if !strings.Contains(out, "retry #2") {
		t.Errorf("header = %q", out)
	}
	out = renderHeader(feed.StatusLive, 3, 50, 2, 80)
	if strings.Contains(out, "retry") {
		t.Errorf("live header should not show retries: %q", out)
	}
}
