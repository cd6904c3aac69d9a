// Package export writes substitution records out for audit: one flat
// Parquet row per substitution, or the full records as JSON lines.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/redact"
)

// AuditRow is one substitution flattened for columnar storage.
type AuditRow struct {
	RunID            string `parquet:"run_id,dict"`
	DocumentID       string `parquet:"document_id,dict"`
	Technique        string `parquet:"technique,dict"`
	RegistryRevision string `parquet:"registry_revision,dict"`
	Start            int32  `parquet:"start"`
	End              int32  `parquet:"end"`
	Matched          string `parquet:"matched"`
	Replacement      string `parquet:"replacement"`
	Source           string `parquet:"source,dict"`
	Kind             string `parquet:"kind,dict"`
	CreatedAt        int64  `parquet:"created_at,timestamp"`
}

// WriteParquet writes every substitution from the given records to a
// Parquet file at path.
func WriteParquet(path string, records []*redact.Record, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create Parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)

	rows := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, s := range rec.Substitutions {
			row := AuditRow{
				RunID:            rec.RunID,
				DocumentID:       rec.DocumentID,
				Technique:        string(rec.Technique),
				RegistryRevision: rec.RegistryRevision,
				Start:            int32(s.Start),
				End:              int32(s.End),
				Matched:          s.Matched,
				Replacement:      s.Replacement,
				Source:           s.Source,
				Kind:             string(s.Kind),
				CreatedAt:        rec.CreatedAt.UnixMilli(),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write audit row: %w", err)
			}
			rows++
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}

	logger.Info("Audit export written",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("rows", rows),
		zap.Time("exported_at", time.Now()))

	return nil
}
