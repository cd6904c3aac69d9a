package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/registry"
)

// PostgresConfig contains database configuration for the registry backend.
type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresStore persists registries in PostgreSQL. It complements the
// mapping file for deployments where several veild instances share one
// registry.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

type entityRow struct {
	Original      string         `db:"original"`
	Alias         string         `db:"alias"`
	Type          string         `db:"type"`
	Variations    pq.StringArray `db:"variations"`
	Notes         string         `db:"notes"`
	CaseSensitive bool           `db:"case_sensitive"`
	Added         time.Time      `db:"added"`
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(config *PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Registry store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return s, nil
}

// initialize checks the connection and creates the schema when absent
func (s *PostgresStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS alias_entities (
			original       TEXT PRIMARY KEY,
			alias          TEXT NOT NULL UNIQUE,
			type           TEXT NOT NULL DEFAULT 'other',
			variations     TEXT[] NOT NULL DEFAULT '{}',
			notes          TEXT NOT NULL DEFAULT '',
			case_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
			added          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create alias_entities table: %w", err)
	}

	s.logger.Info("Database schema ready")
	return nil
}

// Load reads all stored entities into a fresh registry.
func (s *PostgresStore) Load(ctx context.Context) (*registry.Registry, error) {
	var rows []entityRow
	query := `SELECT original, alias, type, variations, notes, case_sensitive, added
		FROM alias_entities ORDER BY added, original`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	records := make([]registry.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, registry.Record{
			Original:      row.Original,
			Alias:         row.Alias,
			Type:          row.Type,
			Variations:    []string(row.Variations),
			Notes:         row.Notes,
			CaseSensitive: row.CaseSensitive,
			Added:         row.Added,
		})
	}

	reg, err := registry.NewFromRecords(records, s.logger)
	if err != nil {
		return nil, fmt.Errorf("stored registry is invalid: %w", err)
	}

	s.logger.Info("Registry loaded from database", zap.Int("entities", reg.Len()))
	return reg, nil
}

// Save replaces the stored registry with the given one inside a single
// transaction.
func (s *PostgresStore) Save(ctx context.Context, reg *registry.Registry) error {
	records := reg.Export()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alias_entities`); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}

	query := `INSERT INTO alias_entities (original, alias, type, variations, notes, case_sensitive, added)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, r := range records {
		added := r.Added
		if added.IsZero() {
			added = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			r.Original,
			r.Alias,
			r.Type,
			pq.StringArray(r.Variations),
			r.Notes,
			r.CaseSensitive,
			added,
		); err != nil {
			return fmt.Errorf("failed to insert entity %q: %w", r.Original, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry save: %w", err)
	}

	s.logger.Info("Registry saved to database", zap.Int("entities", len(records)))
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
