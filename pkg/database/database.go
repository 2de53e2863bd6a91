package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/jmoiron/sqlx"
	"github.com/nhatthm/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	// Drivers wrapped by otelsql.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Config is the required properties to use the database. For sqlite3 Name
// is the database file, or ":memory:".
type Config struct {
	Driver       string
	User         string
	Password     string
	Host         string
	Name         string
	MaxIdleConns int
	MaxOpenConns int
	DisableTLS   bool
}

func (cfg Config) dsn() (string, error) {
	switch cfg.Driver {
	case Postgres, "":
		sslMode := "require"
		if cfg.DisableTLS {
			sslMode = "disable"
		}

		q := make(url.Values)
		q.Set("sslmode", sslMode)
		q.Set("timezone", "utc")

		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     cfg.Host,
			Path:     cfg.Name,
			RawQuery: q.Encode(),
		}
		return u.String(), nil

	case SQLite:
		if cfg.Name == ":memory:" {
			return cfg.Name, nil
		}
		return "file:" + cfg.Name + "?_busy_timeout=5000", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Open knows how to open a database connection based on the configuration.
func Open(cfg Config) (*sqlx.DB, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}

	driver, system := Postgres, semconv.DBSystemPostgreSQL
	if cfg.Driver == SQLite {
		driver, system = SQLite, semconv.DBSystemSqlite
	}

	// Register the otelsql wrapper for the selected driver.
	driverName, err := otelsql.Register(driver,
		otelsql.AllowRoot(),
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithDatabaseName(cfg.Name),
		otelsql.WithSystem(system),
	)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	// Every connection to ":memory:" is a separate database.
	if cfg.Driver == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	// Database metrics
	if err := otelsql.RecordStats(db); err != nil {
		return nil, err
	}

	return sqlx.NewDb(db, driver), nil
}

// StatusCheck returns nil if it can successfully talk to the database. It
// returns a non-nil error otherwise.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {

	// First check we can ping the database.
	var pingError error
	for attempts := 1; ; attempts++ {
		pingError = db.PingContext(ctx)
		if pingError == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	// Make sure we didn't timeout or be cancelled.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Run a simple query to determine connectivity. Running this query forces a
	// round trip through the database.
	const q = `SELECT true`
	var tmp bool
	return db.QueryRowContext(ctx, q).Scan(&tmp)
}

// Migrate attempts to bring the schema for db up to date with the migrations
// embedded for its driver.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := StatusCheck(ctx, db); err != nil {
		return fmt.Errorf("db status check: %w", err)
	}

	var (
		target database.Driver
		err    error
	)
	switch db.DriverName() {
	case SQLite:
		target, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	default:
		target, err = postgres.WithInstance(db.DB, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("invalid target %s instance: %w", db.DriverName(), err)
	}

	source, err := httpfs.New(http.FS(migrations), "migrations/"+db.DriverName())
	if err != nil {
		return fmt.Errorf("invalid source instance: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", source, db.DriverName(), target)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
