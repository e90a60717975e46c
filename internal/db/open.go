// Package db selects the reputation backend named by the storage config.
package db

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/thebtf/xfeed/internal/config"
	gormdb "github.com/thebtf/xfeed/internal/db/gorm"
	"github.com/thebtf/xfeed/internal/db/sqlite"
	"github.com/thebtf/xfeed/internal/reputation"
)

// Open returns the reputation store for cfg.Storage.
func Open(cfg *config.Config) (reputation.Store, error) {
	st := cfg.Storage
	switch st.Driver {
	case config.DriverMemory:
		return reputation.NewMemoryStore(cfg.Reputation.HistoryLimit), nil
	case config.DriverSQLite, "":
		path := st.Path
		if path == "" {
			path = config.DBPath()
		}
		return sqlite.NewStore(sqlite.StoreConfig{
			Path:         path,
			MaxConns:     st.MaxConns,
			HistoryLimit: cfg.Reputation.HistoryLimit,
		})
	case config.DriverPostgres:
		return gormdb.NewStore(gormdb.Config{
			DSN:          st.DSN,
			MaxConns:     st.MaxConns,
			HistoryLimit: cfg.Reputation.HistoryLimit,
			LogLevel:     gormLogLevel(cfg.Level()),
		})
	}
	return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, st.Driver)
}

// gormLogLevel maps the service log level to GORM's. SQL tracing is only
// enabled at debug level and below.
func gormLogLevel(level zerolog.Level) logger.LogLevel {
	switch {
	case level <= zerolog.DebugLevel:
		return logger.Info
	case level <= zerolog.WarnLevel:
		return logger.Warn
	case level == zerolog.ErrorLevel:
		return logger.Error
	}
	return logger.Silent
}
