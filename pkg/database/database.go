package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"subbox_backend/internal/model"
)

type Config struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	DSN             string        `env:"DATABASE_URL"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	LogLevel        string        `env:"DB_LOG_LEVEL" envDefault:"error"`
	SlowQuery       time.Duration `env:"DB_SLOW_QUERY" envDefault:"200ms"`
}

// Open connects to the configured backend. The driver is fixed for the life
// of the process.
func Open(cfg Config, log *slog.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database: DATABASE_URL is not set")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	var gormLog logger.Interface = logger.Default.LogMode(logLevel(cfg.LogLevel))
	if log != nil {
		gormLog = newSlogLogger(log, logLevel(cfg.LogLevel), cfg.SlowQuery)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		PrepareStmt:    false,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: get instance: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if log != nil {
		log.Info("database connected", "driver", dialector.Name())
	}
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}

// Models lists every table owned by the backend, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Plan{},
		&model.Subscription{},
		&model.Payment{},
		&model.Box{},
		&model.ReconciliationTask{},
	}
}

func MigrateDatabase(db *gorm.DB, log *slog.Logger, models ...interface{}) error {
	if len(models) == 0 {
		models = Models()
	}
	for _, m := range models {
		if !db.Migrator().HasTable(m) {
			if err := db.Migrator().CreateTable(m); err != nil {
				return fmt.Errorf("create table for %T: %w", m, err)
			}
			if log != nil {
				log.Info("created table", "model", fmt.Sprintf("%T", m))
			}
			continue
		}
		if err := db.Migrator().AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
		if log != nil {
			log.Info("updated table", "model", fmt.Sprintf("%T", m))
		}
	}
	return nil
}
