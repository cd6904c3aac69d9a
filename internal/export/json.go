package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/redact"
)

// WriteJSONLines writes one substitution record per line, preserving the
// full nested structure for tooling that prefers JSON over Parquet.
func WriteJSONLines(path string, records []*redact.Record, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON export file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)

	count := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record for %s: %w", rec.DocumentID, err)
		}
		count++
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush JSON export: %w", err)
	}

	logger.Info("JSON export written",
		zap.String("path", path),
		zap.Int("records", count))

	return nil
}
