// Package database opens the gorm handle used by the booking store and prepares its schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/lessons/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/lessons/internal/store/migrations"
	"github.com/glebarez/sqlite"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres      = "postgres"
	DriverSQLite        = "sqlite"
	defaultSQLiteFile   = "lessons.db"
	sqliteMemory        = ":memory:"
	sqliteBusyTimeoutMS = 5000
	schemePostgres      = "postgres://"
	schemePostgresql    = "postgresql://"
	schemeSQLite        = "sqlite://"
	slowQueryThreshold  = 200 * time.Millisecond
	gormLoggerName      = "gorm"
)

// ErrUnsupportedDriver is returned for database URLs no driver understands.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Handle is an open database with its driver name and teardown.
type Handle struct {
	DB     *gorm.DB
	Driver string
	close  func() error
}

// Close releases the underlying connection pool.
func (handle *Handle) Close() error {
	if handle == nil || handle.close == nil {
		return nil
	}
	return handle.close()
}

// ResolveDriver picks the driver for dsn and, for sqlite, the file path to open.
// Anything that is not a postgres URL is treated as a sqlite location.
func ResolveDriver(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty database url", ErrUnsupportedDriver)
	}
	if strings.HasPrefix(trimmed, schemePostgres) || strings.HasPrefix(trimmed, schemePostgresql) {
		return DriverPostgres, "", nil
	}
	if strings.HasPrefix(trimmed, schemeSQLite) {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if parsed.Host != "" {
			path = parsed.Host + path
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return DriverSQLite, sqlitePath, err
	}
	if strings.Contains(trimmed, "://") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, trimmed)
	}
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return DriverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == sqliteMemory {
		return path, nil
	}
	if filepath.IsAbs(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}

// Open connects to the database named by dsn.
// SQLite pools are capped at one connection so transactions serialize.
// Slow queries and SQL errors are reported to zapLogger at warn level; a nil logger discards them.
func Open(ctx context.Context, dsn string, zapLogger *zap.Logger) (*Handle, error) {
	driver, sqlitePath, err := ResolveDriver(dsn)
	if err != nil {
		return nil, err
	}
	config := &gorm.Config{Logger: newGormLogger(zapLogger)}
	var db *gorm.DB
	switch driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), config)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(sqliteDSN(sqlitePath)), config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Handle{DB: db, Driver: driver, close: sqlDB.Close}, nil
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	if zapLogger == nil {
		return logger.Discard
	}
	writer, err := zap.NewStdLogAt(zapLogger.Named(gormLoggerName), zapcore.WarnLevel)
	if err != nil {
		return logger.Discard
	}
	return logger.New(writer, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func sqliteDSN(path string) string {
	if path == sqliteMemory {
		return path
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, sqliteBusyTimeoutMS)
}

// Prepare brings the schema up to date: gorm AutoMigrate for sqlite, embedded goose migrations for postgres.
func Prepare(ctx context.Context, handle *Handle) error {
	switch handle.Driver {
	case DriverSQLite:
		if err := handle.DB.WithContext(ctx).AutoMigrate(gormstore.Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	case DriverPostgres:
		sqlDB, err := handle.DB.DB()
		if err != nil {
			return err
		}
		goose.SetBaseFS(migrations.FS)
		if err := goose.SetDialect(DriverPostgres); err != nil {
			return fmt.Errorf("set goose dialect: %w", err)
		}
		if err := goose.UpContext(ctx, sqlDB, migrations.Directory); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, handle.Driver)
	}
}

// SchemaVersion reports the applied goose version; sqlite schemas are unversioned and report 0.
func SchemaVersion(ctx context.Context, handle *Handle) (int64, error) {
	if handle.Driver != DriverPostgres {
		return 0, nil
	}
	sqlDB, err := handle.DB.DB()
	if err != nil {
		return 0, err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(DriverPostgres); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
