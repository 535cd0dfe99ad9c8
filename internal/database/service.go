package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	queries "flowstate/internal/database/generated"
	dberrors "flowstate/internal/infrastructure/errors"
	"flowstate/internal/infrastructure/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the ledger database described by config and applies
// migrations when AutoMigrate is set.
func Open(ctx context.Context, config *Config, logger logging.Logger) (*SQLiteService, error) {
	if err := config.Validate(); err != nil {
		return nil, dberrors.HandleValidationError("Open", "config", config.Path, err.Error())
	}

	service := NewSQLiteService(logger)
	if err := service.Connect(ctx, config); err != nil {
		return nil, err
	}

	if config.AutoMigrate {
		if err := service.Migrate(ctx); err != nil {
			service.Close()
			return nil, err
		}
	}

	return service, nil
}

// SQLiteService owns the SQLite handle shared by the ledger repository.
// Prepared statements are created lazily and closed with the service.
type SQLiteService struct {
	db              *sql.DB
	config          *Config
	migrationRunner MigrationManager
	queries         *queries.Queries
	prepared        *queries.Queries
	preparedMu      sync.RWMutex
	logger          logging.Logger
}

var _ Service = (*SQLiteService)(nil)

// NewSQLiteService creates an unconnected service; call Connect before use
func NewSQLiteService(logger logging.Logger) *SQLiteService {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteService{
		logger: logger,
	}
}

// Connect opens and pings the database described by config
func (s *SQLiteService) Connect(ctx context.Context, config *Config) error {
	s.config = config

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close existing database connection", "error", err)
		}
		s.db = nil
		s.queries = nil
		s.migrationRunner = nil

		s.preparedMu.Lock()
		if s.prepared != nil {
			if err := s.prepared.Close(); err != nil {
				s.logger.Error("Failed to close existing prepared statements", "error", err)
			}
			s.prepared = nil
		}
		s.preparedMu.Unlock()
	}

	connStr := config.GetConnectionString()

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to open database: %v", err))
	}

	s.configureConnectionPool(db, config)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to ping database: %v", err))
	}

	s.db = db
	s.queries = queries.New(db)
	s.migrationRunner = NewMigrationRunner(db, s.logger)

	s.logger.Info("Connected to ledger database", "path", config.Path, "journalMode", config.JournalMode)
	return nil
}

// Close releases prepared statements and the connection pool
func (s *SQLiteService) Close() error {
	if s.db == nil {
		return nil
	}

	s.preparedMu.Lock()
	if s.prepared != nil {
		if err := s.prepared.Close(); err != nil {
			s.logger.Error("Failed to close prepared statements", "error", err)
		}
		s.prepared = nil
	}
	s.preparedMu.Unlock()

	if err := s.db.Close(); err != nil {
		return dberrors.HandleConnectionError("Close", fmt.Sprintf("failed to close database: %v", err))
	}

	s.db = nil
	s.queries = nil
	s.migrationRunner = nil

	s.logger.Info("Closed ledger database")
	return nil
}

// Migrate validates and applies the embedded migrations
func (s *SQLiteService) Migrate(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Migrate", "database not connected")
	}

	if s.migrationRunner == nil {
		return dberrors.HandleValidationError("Migrate", "migrationRunner", "nil", "migration runner not initialized")
	}

	if err := s.migrationRunner.ValidateMigrations(); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Migrate", err, map[string]string{
			"phase": "validation",
		})
	}

	if err := s.migrationRunner.RunMigrations(ctx); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Migrate", err, map[string]string{
			"phase": "execution",
		})
	}

	return nil
}

// Health pings the database and runs a trivial query
func (s *SQLiteService) Health(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Health", "database not connected")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Health", err, map[string]string{
			"phase": "ping",
		})
	}

	var result int
	err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Health", err, map[string]string{
			"phase": "query",
		})
	}

	if result != 1 {
		return dberrors.HandleValidationError("Health", "query_result", fmt.Sprintf("%d", result), "expected result 1")
	}

	return nil
}

// DB returns the underlying connection pool
func (s *SQLiteService) DB() *sql.DB {
	return s.db
}

// GetQueries returns the generated queries bound to the pool
func (s *SQLiteService) GetQueries() *queries.Queries {
	return s.queries
}

// GetMigrationVersion returns the current schema version
func (s *SQLiteService) GetMigrationVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, dberrors.HandleConnectionError("GetMigrationVersion", "database not connected")
	}
	if s.migrationRunner == nil {
		return 0, dberrors.HandleValidationError("GetMigrationVersion", "migrationRunner", "nil", "migration runner not initialized")
	}

	version, err := s.migrationRunner.GetCurrentVersion(ctx)
	if err != nil {
		return 0, dberrors.WrapDatabaseError("GetMigrationVersion", err)
	}
	return version, nil
}

// GetPreparedQueries returns the shared prepared statements, preparing
// them on first use.
func (s *SQLiteService) GetPreparedQueries(ctx context.Context) (*queries.Queries, error) {
	if s.db == nil {
		return nil, dberrors.HandleConnectionError("GetPreparedQueries", "database not connected")
	}

	s.preparedMu.RLock()
	if s.prepared != nil {
		prepared := s.prepared
		s.preparedMu.RUnlock()
		return prepared, nil
	}
	s.preparedMu.RUnlock()

	s.preparedMu.Lock()
	defer s.preparedMu.Unlock()

	if s.prepared != nil {
		return s.prepared, nil
	}

	preparedQueries, err := queries.Prepare(ctx, s.db)
	if err != nil {
		return nil, dberrors.WrapDatabaseError("GetPreparedQueries", err)
	}

	s.prepared = preparedQueries
	return s.prepared, nil
}

// GetStats returns connection pool statistics
func (s *SQLiteService) GetStats() sql.DBStats {
	if s.db == nil {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Optimize runs ANALYZE and VACUUM. Pruning old days leaves free pages
// behind, so the CLI calls this after a prune.
func (s *SQLiteService) Optimize(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Optimize", "database not connected")
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Optimize", err, map[string]string{
			"phase": "analyze",
		})
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && s.logger != nil {
		s.logger.Warn("wal_checkpoint failed", "error", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Optimize", err, map[string]string{
			"phase": "vacuum",
		})
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil && s.logger != nil {
		s.logger.Warn("PRAGMA optimize failed", "error", err)
	}

	s.logger.Info("Ledger database optimized")
	return nil
}

// configureConnectionPool limits the pool to one connection unless WAL is
// enabled. In WAL mode readers may run alongside the single writer.
func (s *SQLiteService) configureConnectionPool(db *sql.DB, config *Config) {
	if config.ForceSingleConnection || !strings.EqualFold(config.JournalMode, "WAL") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		s.logger.Debug("Configured single connection pool", "journalMode", config.JournalMode)
	} else {
		maxConns := config.MaxConnections
		if maxConns <= 0 {
			maxConns = 4
		}
		maxConns = min(maxConns, 4)
		idleConns := max(min(config.MaxIdleConns, maxConns), 1)

		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(idleConns)
		s.logger.Debug("Configured WAL connection pool", "maxOpenConns", maxConns, "maxIdleConns", idleConns)
	}

	// an in-memory database disappears with its last connection
	if config.IsInMemory() {
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
}
