package intake

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"chainScope/internal/model"
)

const maxLineBytes = 32 * 1024 * 1024

// Source reads node block messages from a JSONL stream, one message per
// line. "-" reads stdin. Line numbers double as replay offsets.
type Source struct {
	path   string
	logger *zap.Logger
}

func NewSource(path string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{path: path, logger: logger}
}

// Stream sends messages with offsets greater than fromOffset to out, in file
// order, then closes out. Lines that are not JSON at all are skipped with a
// log line; the decoder owns semantic validation.
func (s *Source) Stream(ctx context.Context, out chan<- *model.NewBlockMessage, fromOffset uint64) error {
	defer close(out)

	var in io.Reader
	if s.path == "-" {
		in = os.Stdin
	} else {
		file, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("open event source: %w", err)
		}
		defer file.Close()
		in = file
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var offset uint64
	for scanner.Scan() {
		offset++
		if offset <= fromOffset {
			continue
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg model.NewBlockMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("skipping unparseable event line",
				zap.Uint64("offset", offset),
				zap.Error(err),
			)
			continue
		}
		msg.Offset = offset

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- &msg:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event source: %w", err)
	}
	return nil
}
