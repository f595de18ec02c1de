package datastore

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dwang48/steam-scraper/internal/errors"
	"github.com/dwang48/steam-scraper/internal/logging"
)

// slowQueryThreshold marks queries worth flagging in the database log.
const slowQueryThreshold = time.Second

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "datastore.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "datastore", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize datastore file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "datastore")
		closeLogger = func() error { return nil }
	}
}

// createGormLogger returns a GORM logger writing to the service log. Debug
// mode logs every statement, otherwise only slow queries and errors.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(
		log.New(slogWriter{}, "", 0),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// slogWriter bridges GORM's printf-style logging into the service slog.
type slogWriter struct{}

func (slogWriter) Write(p []byte) (int, error) {
	logger.Info(string(p))
	return len(p), nil
}

// performAutoMigration keeps the schema current across versions.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&KnownAppID{},
		&DiscoveryBatch{},
		&Game{},
		&GameSnapshot{},
		&WatchlistEntry{},
		&MomentumResult{},
	); err != nil {
		return errors.Newf("migrating %s schema: %w", dbType, err).
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Build()
	}

	if debug {
		logger.Debug("Database initialized",
			"db_type", dbType,
			"connection", connectionInfo)
	}
	logger.Info("Schema migration complete", "db_type", dbType)
	return nil
}

// CloseServiceLogger releases the datastore log file. Called on process
// shutdown; safe to call more than once.
func CloseServiceLogger() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing datastore logger: %v", err)
		}
	}
}
