// Package postgres implements the store contract on PostgreSQL through gorm,
// holding reference arrays as text[] columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/internal/store"
	"github.com/snapshare/snapfeed/pkg/config"
	"github.com/snapshare/snapfeed/pkg/logging"
)

// zapWriter adapts zap.Logger to logger.Writer interface
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Store wraps a gorm connection
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "DEBUG", "debug":
		return logger.Info
	case "INFO", "info":
		return logger.Warn
	case "WARN", "warn", "WARNING", "warning":
		return logger.Error
	case "ERROR", "error":
		return logger.Silent
	}
	return logger.Warn
}

// New opens the database, verifies it and migrates the schema
func New(cfg *config.StoreConfig, logLevel string) (*Store, error) {
	gormLogger := logger.New(
		&zapWriter{logger: logging.WithComponent("gorm")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, timeout: cfg.OperationTimeout}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}

	logging.GetLogger().Info("Database connection established")

	return s, nil
}

// Migrate creates the tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &postRow{}, &repostRow{}, &mentionRow{}, &topicRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database health
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Unavailable("Ping", err)
	}
	ctx, cancel := store.Bounded(ctx, s.timeout)
	defer cancel()
	return apperr.Unavailable("Ping", sqlDB.PingContext(ctx))
}

// conn returns a session bound to a context limited by the operation timeout
func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := store.Bounded(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

// classify maps gorm errors onto the error taxonomy
func classify(op string, err error, format string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(op, format, args...)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(op, format, args...)
	}
	return apperr.Unavailable(op, err)
}
