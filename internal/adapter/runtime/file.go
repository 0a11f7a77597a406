package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// FileSource replays raw events recorded as JSON lines, one
// {"event": ..., "data": ...} object per line.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Stream ignores threadID and req and replays the file.
func (f *FileSource) Stream(ctx context.Context, _ string, _ domain.StreamRequest, handler EventHandler) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer file.Close()

	return ReadJSONLines(ctx, file, handler)
}

// ReadJSONLines decodes one raw event per non-blank line.
func ReadJSONLines(ctx context.Context, r io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var ev domain.RawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("line %d: failed to decode event: %w", lineNo, err)
		}
		if err := handler(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}
