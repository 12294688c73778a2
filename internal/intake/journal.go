package intake

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chainScope/internal/model"
)

// Journal appends rejected-message records to a JSONL file for operator
// review.
type Journal struct {
	path string
	mu   sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes one record as a JSON line.
func (j *Journal) Append(rec model.DecodeErrorRecord) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	return nil
}
