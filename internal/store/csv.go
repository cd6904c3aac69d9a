package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/registry"
)

var csvHeader = []string{"Original", "Alias", "Type", "Variations", "Notes"}

// ExportCSV writes the registry to a CSV file. Variations are joined with
// "; " in a single column.
func ExportCSV(reg *registry.Registry, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	records := reg.Export()
	for _, r := range records {
		row := []string{
			r.Original,
			r.Alias,
			r.Type,
			strings.Join(r.Variations, "; "),
			r.Notes,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	logger.Info("Registry exported to CSV",
		zap.String("path", path),
		zap.Int("entities", len(records)))

	return nil
}

// ImportCSV merges entities from a CSV file into the registry using the
// given merge strategy. The whole import is applied atomically; any invalid
// row or unresolvable conflict leaves the registry untouched.
func ImportCSV(reg *registry.Registry, path string, strategy registry.MergeStrategy, logger *zap.Logger) (*registry.MergeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file %s is empty", path)
	}

	header := rows[0]
	if len(header) < 2 || !strings.EqualFold(header[0], "Original") || !strings.EqualFold(header[1], "Alias") {
		return nil, fmt.Errorf("CSV file %s has unexpected header %v", path, header)
	}

	var records []registry.Record
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("CSV row %d has %d columns, want at least 2", i+2, len(row))
		}
		rec := registry.Record{
			Original: row[0],
			Alias:    row[1],
		}
		if len(row) > 2 {
			rec.Type = row[2]
		}
		if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
			for _, v := range strings.Split(row[3], ";") {
				if v = strings.TrimSpace(v); v != "" {
					rec.Variations = append(rec.Variations, v)
				}
			}
		}
		if len(row) > 4 {
			rec.Notes = row[4]
		}
		records = append(records, rec)
	}

	incoming, err := registry.NewFromRecords(records, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("invalid CSV content in %s: %w", path, err)
	}

	result, err := reg.Merge(incoming, strategy)
	if err != nil {
		return nil, err
	}

	logger.Info("Registry imported from CSV",
		zap.String("path", path),
		zap.String("strategy", string(strategy)),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("overwritten", result.Overwritten),
		zap.Int("renamed", result.Renamed))

	return result, nil
}
