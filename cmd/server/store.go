package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/bluescreen10/sessionx/filestore"
	"github.com/bluescreen10/sessionx/gormstore"
	"github.com/bluescreen10/sessionx/internal/config"
	"github.com/bluescreen10/sessionx/memstore"
	"github.com/bluescreen10/sessionx/mysqlstore"
	"github.com/bluescreen10/sessionx/pgxstore"
	"github.com/bluescreen10/sessionx/redisstore"
	"github.com/bluescreen10/sessionx/scsstore"
	"github.com/bluescreen10/sessionx/session"
	"github.com/bluescreen10/sessionx/sqlitestore"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// cleanupInterval is how often stores without request driven garbage
// collection sweep expired sessions.
const cleanupInterval = time.Minute

// openStore builds the store selected by cfg.Store.Driver. The returned
// func releases its connections.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (session.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		s := memstore.New()
		stop := make(chan struct{})
		go s.PeriodicCleanUp(cleanupInterval, stop)
		return s, func() { close(stop) }, nil

	case "file":
		s, err := filestore.New(cfg.Session.SessionSavePath,
			filestore.WithPrefix(cfg.Session.SessionFilePrefix),
			filestore.WithLogger(log),
		)
		return s, func() {}, err

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		return redisstore.New(rdb, redisstore.WithPrefix(cfg.Redis.Prefix)), func() { rdb.Close() }, nil

	case "gorm":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, nil, err
		}
		db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		s, err := gormstore.New(db, gormstore.WithLogger(log))
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return s, func() { sqlDB.Close() }, nil

	case "mysql":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("%w: store.dsn is required for mysql", session.ErrInvalidConfig)
		}
		mcfg, err := mysql.ParseDSN(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		mcfg.ParseTime = true
		connector, err := mysql.NewConnector(mcfg)
		if err != nil {
			return nil, nil, err
		}
		db := sql.OpenDB(connector)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach mysql: %w", err)
		}
		s, err := mysqlstore.New(db, mysqlstore.WithLogger(log))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, fmt.Errorf("%w: store.dsn is required for postgres", session.ErrInvalidConfig)
		}
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := pgxstore.New(ctx, pool, pgxstore.WithLogger(log))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case "sqlite":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlitestore.Open(dsn, sqlitestore.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "scs":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := createSCSTable(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		st := sqlite3store.NewWithCleanupInterval(db, cleanupInterval)
		return scsstore.New(st), func() { st.StopCleanup(); db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown store driver %q", session.ErrInvalidConfig, cfg.Store.Driver)
}

// sqliteDSN returns store.dsn or a per driver database file inside the
// save path.
func sqliteDSN(cfg *config.Config) (string, error) {
	if cfg.Store.DSN != "" {
		return cfg.Store.DSN, nil
	}
	if err := os.MkdirAll(cfg.Session.SessionSavePath, 0o700); err != nil {
		return "", fmt.Errorf("failed to create save path: %w", err)
	}
	return filepath.Join(cfg.Session.SessionSavePath, "sessions-"+cfg.Store.Driver+".db"), nil
}

// createSCSTable creates the table expected by scs/sqlite3store.
func createSCSTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return fmt.Errorf("failed to create scs sessions table: %w", err)
	}
	return nil
}
