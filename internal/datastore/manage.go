package datastore

import (
	"io"
	"log"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kartevonmorgen/kvmsync/internal/errors"
	"github.com/kartevonmorgen/kvmsync/internal/logging"
)

// Package-level logger specific to the datastore
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	initialLevel := slog.LevelInfo
	serviceLevelVar.Set(initialLevel)

	logger, _, err = logging.NewFileLogger("logs/datastore.log", "datastore", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled handler to prevent nil panics, but respects the level var
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "datastore")
	}
}

// slowQueryThreshold defines the duration after which a query is considered
// slow. Bulk upserts of full detail chunks can legitimately take several
// hundred milliseconds, so the threshold sits above that.
const slowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(&slogWriter{}, "", 0),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// slogWriter routes GORM's log output into the datastore service logger.
type slogWriter struct{}

func (w *slogWriter) Write(p []byte) (int, error) {
	logger.Warn(string(p))
	return len(p), nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()

	if debug {
		logger.Debug("Starting database migration", "db_type", dbType)
	}

	if err := db.AutoMigrate(&EntryRecord{}, &SubscriptionRecord{}); err != nil {
		logger.Error("Database migration failed",
			"db_type", dbType,
			"connection", connectionInfo,
			"error", err)
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		logger.Debug("Database migration completed successfully",
			"db_type", dbType,
			"duration", time.Since(migrationStart))
	}
	return nil
}
