package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/imageshelf/internal/config"
)

// eventRecord mirrors otel.Event for JSON decoding.
// We decode from JSONL rather than importing otel to keep this
// subcommand usable even if the event schema evolves.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Feed      string         `json:"feed"`
	ImageURL  string         `json:"image_url"`
	State     string         `json:"state"`
	Attempt   int            `json:"attempt"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

// eventFilter selects events; empty fields match everything.
type eventFilter struct {
	kind    string // prefix, e.g. "save" or "feed.error"
	level   string // minimum level
	comp    string
	image   string // substring of the image URL
	session string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.image != "" && !strings.Contains(ev.ImageURL, f.image) {
		return false
	}
	if f.session != "" && !strings.HasPrefix(ev.SessionID, f.session) {
		return false
	}
	return true
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "JSONL event log viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f eventFilter
			f.kind, _ = cmd.Flags().GetString("kind")
			f.level, _ = cmd.Flags().GetString("level")
			f.comp, _ = cmd.Flags().GetString("comp")
			f.image, _ = cmd.Flags().GetString("image")
			f.session, _ = cmd.Flags().GetString("session")
			tail, _ := cmd.Flags().GetInt("tail")
			follow, _ := cmd.Flags().GetBool("follow")
			rawJSON, _ := cmd.Flags().GetBool("json")
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				path = filepath.Join(config.DataDir(), "imageshelf.events.jsonl")
			}

			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%w\n  Run imageshelf or shelf serve first to generate events", err)
			}
			defer file.Close()

			out := cmd.OutOrStdout()
			for _, l := range readTailLines(file, tail, f.match) {
				fmt.Fprintln(out, formatEvent(l.ev, l.raw, rawJSON))
			}
			if !follow {
				return nil
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return followEvents(ctx, file, out, f.match, rawJSON, 100*time.Millisecond)
		},
	}
	cmd.Flags().Int("tail", 50, "number of recent matching events to show")
	cmd.Flags().BoolP("follow", "f", false, "keep printing new events (like tail -f)")
	cmd.Flags().String("kind", "", "filter by event kind prefix (e.g. 'save')")
	cmd.Flags().String("level", "", "minimum level: debug, info, warn, error")
	cmd.Flags().String("comp", "", "filter by component name")
	cmd.Flags().String("image", "", "filter by image URL substring")
	cmd.Flags().String("session", "", "filter by session ID prefix")
	cmd.Flags().Bool("json", false, "output raw JSON lines")
	cmd.Flags().String("file", "", "event log path (default ~/.imageshelf/imageshelf.events.jsonl)")
	return cmd
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev eventRecord, raw []byte, rawJSON bool) string {
	if rawJSON {
		return string(raw)
	}
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-7s] %-18s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.State != "" {
		parts = append(parts, "state="+ev.State)
	}
	if ev.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", ev.Attempt))
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.ImageURL != "" {
		parts = append(parts, "img="+truncate(ev.ImageURL, 60))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads r to EOF and returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	if n <= 0 {
		return nil
	}
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]parsedLine, 0, n)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) {
			continue
		}
		// Make a copy of raw since scanner reuses the buffer
		line := parsedLine{ev: ev, raw: append([]byte(nil), raw...)}
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			copy(ring, ring[1:])
			ring[n-1] = line
		}
	}
	return ring
}

// followEvents polls r for appended lines until ctx is done.
func followEvents(ctx context.Context, r io.Reader, w io.Writer, match func(eventRecord) bool, rawJSON bool, poll time.Duration) error {
	reader := bufio.NewReader(r)
	var pending []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			// Partial line: keep it until the writer finishes it.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
			continue
		}

		line := trimLine(pending)
		pending = pending[:0]
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if match(ev) {
			fmt.Fprintln(w, formatEvent(ev, line, rawJSON))
		}
	}
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
