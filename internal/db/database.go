package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/types"
	"github.com/nanofleet/agentd/internal/utils"
)

// Service owns the durable store shared by conversation memory and usage
// metering. The driver is selected once at startup: sqlite (default) keeps
// everything in a single workspace file, postgres is for deployments that
// already run one.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewService(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "sqlite", log))
	var (
		gormDB *gorm.DB
		err    error
	)
	switch driver {
	case "sqlite":
		gormDB, err = openSQLite(log)
	case "postgres":
		gormDB, err = openPostgres(log)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", driver)
	}
	if err != nil {
		serviceLog.Error("Failed to open database", "driver", driver, "error", err)
		return nil, err
	}
	serviceLog.Info("Database connected", "driver", driver)

	return &Service{db: gormDB, log: serviceLog}, nil
}

func openSQLite(log *logger.Logger) (*gorm.DB, error) {
	dbPath, err := utils.RequireEnv("MEMORY_DB_PATH", log)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
}

func openPostgres(log *logger.Logger) (*gorm.DB, error) {
	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "agentd", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Thread{},
		&types.UsageRecord{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
