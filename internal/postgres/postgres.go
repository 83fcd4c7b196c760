// Package postgres opens the pgx connection pool and applies the embedded
// schema migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrSnakeDoc/timecapsule/internal/connect"
	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectOptions configures the pool and its startup retry behavior.
type ConnectOptions struct {
	DatabaseURL    string
	MaxConns       int32
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	MaxWait        time.Duration
	PingTimeout    time.Duration
	WarnThreshold  int
}

// Connect creates the pool and waits until the database answers a ping.
func Connect(ctx context.Context, opts ConnectOptions, log logger.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	addr := fmt.Sprintf("%s:%d/%s", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, poolCfg.ConnConfig.Database)
	_, err = connect.WithRetry(ctx, connect.Options{
		Name:           "postgres",
		Addr:           addr,
		ConnectTimeout: opts.ConnectTimeout,
		RetryInterval:  opts.RetryInterval,
		MaxWait:        opts.MaxWait,
		PingTimeout:    opts.PingTimeout,
		WarnThreshold:  opts.WarnThreshold,
	}, pool.Ping, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Migrate applies every pending up migration.
func Migrate(databaseURL string, log logger.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("migrations applied",
		logger.Int("version", int(version)),
		logger.Bool("dirty", dirty))
	return nil
}

// Rollback reverts the given number of migrations.
func Rollback(databaseURL string, steps int, log logger.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be > 0, got %d", steps)
	}
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	log.Info("migrations rolled back", logger.Int("steps", steps))
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	dbURL, err := MigrateURL(databaseURL)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, log logger.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		log.Warn("closing migrator",
			logger.String("source_error", fmt.Sprint(srcErr)),
			logger.String("database_error", fmt.Sprint(dbErr)))
	}
}

// MigrateURL rewrites a postgres:// DSN to the pgx5:// scheme expected by
// the migrate pgx/v5 driver.
func MigrateURL(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// ReadinessChecker pings the pool for /readyz.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

func (c *ReadinessChecker) Name() string { return "postgres" }

func (c *ReadinessChecker) Ready(ctx context.Context) error {
	return c.pool.Ping(ctx)
}
