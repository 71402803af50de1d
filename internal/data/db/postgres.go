package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// Open connects gorm to postgres or sqlite. DSNs are passed through untouched;
// for sqlite ":memory:" is accepted.
func Open(logg *logger.Logger, backend, dsn string) (*gorm.DB, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing dsn")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm backend %q", backend)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", backend, err)
	}
	logg.Info("gorm connected", "backend", backend)
	return db, nil
}
