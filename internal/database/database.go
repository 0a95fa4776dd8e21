package database

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kazz187/devguild/internal/config"
	"github.com/kazz187/devguild/pkg/cerr"
)

// Open connects to the configured SQL database and applies pool settings.
func Open(env *config.DatabaseEnv) (*gorm.DB, error) {
	if env.DSN == "" {
		return nil, errors.New("DB_DSN is required when STORE_TYPE=sql")
	}

	var dialector gorm.Dialector
	switch env.Driver {
	case "mysql":
		dialector = mysql.Open(env.DSN)
	case "postgres":
		dialector = postgres.Open(env.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", env.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(env.MaxIdleConns)
	sqlDB.SetMaxOpenConns(env.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(env.ConnMaxLifetime)

	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrator is implemented by every gorm-backed repository.
type Migrator interface {
	Migrate(db *gorm.DB) error
}

func Migrate(db *gorm.DB, migrators ...Migrator) error {
	for _, m := range migrators {
		if err := m.Migrate(db); err != nil {
			return err
		}
	}
	return nil
}

func WrapReadError(target string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read %s: %w", target, err))
}

func WrapWriteError(target string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("%s already exists", target), err)
	}
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}
