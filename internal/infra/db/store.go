package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rmaselli/smartFleet-app-sub002/internal/config"
	"github.com/rmaselli/smartFleet-app-sub002/internal/infra/db/migrations"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

type Store struct {
	DB      *gorm.DB
	timeout time.Duration
	logger  *zap.Logger
}

func NewStore(cfg config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required for the postgres store")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreFromDB(gdb, cfg.DBStatementTimeout, logger), nil
}

func NewStoreFromDB(gdb *gorm.DB, timeout time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{DB: gdb, timeout: timeout, logger: logger}
}

func (s *Store) Repositories() usecase.Repositories {
	scope := timeoutScope{timeout: s.timeout}
	return usecase.Repositories{
		Operators:   NewOperatorRepository(s.DB, scope),
		Sheets:      NewSheetRepository(s.DB, scope),
		Attachments: NewAttachmentRepository(s.DB, scope),
		Audit:       NewAuditEventRepository(s.DB, scope),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if s.DB == nil {
		return errDBUnavailable
	}
	files, err := migrations.Files()
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := s.DB.WithContext(ctx).Exec(file.SQL).Error; err != nil {
			return fmt.Errorf("apply migration %s: %w", file.Name, err)
		}
		s.logger.Info("migration applied", zap.String("file", file.Name))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
