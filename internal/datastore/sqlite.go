package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/errors"
	"github.com/shirou/gopsutil/v3/disk"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements Interface for SQLite databases
type SQLiteStore struct {
	Settings *conf.Settings
	DataStore
}

// minFreeBytes is the free-space floor below which Open refuses to start;
// an always-on recorder filling the disk corrupts more than itself.
const minFreeBytes = 64 * 1024 * 1024

// checkDiskSpace verifies the database directory has room to grow.
func checkDiskSpace(dbPath string) error {
	dir := filepath.Dir(dbPath)
	usage, err := disk.Usage(dir)
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategorySystem).
			Context("operation", "check_disk_space").
			Context("path", dir).
			Build()
	}
	if usage.Free < minFreeBytes {
		return errors.Newf("insufficient disk space for database: %d bytes free", usage.Free).
			Component("datastore").
			Category(errors.CategorySystem).
			Context("operation", "check_disk_space").
			Context("path", dir).
			Context("free_bytes", fmt.Sprintf("%d", usage.Free)).
			Build()
	}
	return nil
}

// Open initializes the SQLite database connection
func (s *SQLiteStore) Open() error {
	dbPath := s.Settings.DatabasePath()

	getLogger().Info("Opening SQLite database", "path", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategorySystem).
			Context("operation", "create_database_directory").
			Context("directory", filepath.Dir(dbPath)).
			Build()
	}

	// In-memory databases have no directory worth checking.
	if dbPath != ":memory:" && !isMemoryDSN(dbPath) {
		if err := checkDiskSpace(dbPath); err != nil {
			return err
		}
	}

	var gormLogger logger.Interface
	if s.Settings.Debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_sqlite_database").
			Context("db_path", dbPath).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_underlying_sqldb").
			Build()
	}

	// A single connection serializes writes behind SQLite's write lock and
	// keeps in-memory databases on one schema. Must precede the pragma
	// statements so they apply to the connection everything else uses.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	// Set SQLite pragmas for better performance
	pragmas := []string{
		"PRAGMA foreign_keys=ON",    // required for foreign key constraints
		"PRAGMA journal_mode=WAL",   // faster writes
		"PRAGMA synchronous=NORMAL", // faster writes
		"PRAGMA cache_size=-4000",   // increase cache size
		"PRAGMA temp_store=MEMORY",  // faster writes
		"PRAGMA busy_timeout=5000",  // wait for competing writers instead of failing
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			getLogger().Warn("Failed to set pragma", "pragma", pragma, "error", err)
		}
	}

	s.DB = db

	getLogger().Info("SQLite database opened successfully",
		"path", dbPath,
		"journal_mode", "WAL",
		"synchronous", "NORMAL")

	return performAutoMigration(db, s.Settings.Debug)
}

// isMemoryDSN reports whether the DSN refers to an in-memory database.
func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || dsn == "file::memory:" ||
		len(dsn) > 9 && dsn[:9] == "file::mem"
}

// Close closes the SQLite database connection
func (s *SQLiteStore) Close() error {
	if s.DB == nil {
		return nil
	}

	getLogger().Info("Closing SQLite database", "path", s.Settings.DatabasePath())

	sqlDB, err := s.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_underlying_sqldb").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		getLogger().Error("Failed to close SQLite database",
			"path", s.Settings.DatabasePath(),
			"error", err)
		return err
	}
	return nil
}

// Optimize performs database optimization operations (ANALYZE and VACUUM)
func (s *SQLiteStore) Optimize(ctx context.Context) error {
	if s.DB == nil {
		return ErrDBNotConnected
	}

	optimizeStart := time.Now()
	optimizeLogger := getLogger().With("operation", "optimize")
	optimizeLogger.Info("Starting database optimization")

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("operation", "optimize").
			Context("reason", "context_cancelled").
			Build()
	}

	if err := s.DB.WithContext(ctx).Exec("ANALYZE").Error; err != nil {
		enhancedErr := errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "analyze").
			Build()
		optimizeLogger.Error("ANALYZE failed", "error", enhancedErr)
		return enhancedErr
	}

	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("operation", "optimize").
			Context("reason", "context_cancelled").
			Build()
	}

	if err := s.DB.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		enhancedErr := errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "vacuum").
			Build()
		optimizeLogger.Error("VACUUM failed", "error", enhancedErr)
		return enhancedErr
	}

	optimizeLogger.Info("Database optimization completed",
		"total_duration", time.Since(optimizeStart))
	return nil
}
