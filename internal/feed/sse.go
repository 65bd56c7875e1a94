package feed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// maxLineSize caps a single SSE line. Longer lines fail the stream.
const maxLineSize = 1 << 20

// readEvents parses a text/event-stream body and calls fn with the data of
// every dispatched "message" event. Events with another event name,
// comments, id and retry fields carry no payload for the feed and are
// skipped. It returns nil when r reaches EOF; a trailing event without its
// terminating blank line is discarded.
func readEvents(r io.Reader, fn func(data []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		data    bytes.Buffer
		hasData bool
		event   string
	)

	for sc.Scan() {
		line := sc.Bytes()

		if len(line) == 0 {
			if hasData && (event == "" || event == "message") {
				fn(bytes.TrimSuffix(data.Bytes(), []byte("\n")))
			}
			data.Reset()
			hasData = false
			event = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = bytes.TrimPrefix(line[i+1:], []byte(" "))
		}

		switch string(field) {
		case "data":
			data.Write(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			event = string(value)
		}
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}
