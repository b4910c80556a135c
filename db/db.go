package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"githubrank/config"
	"githubrank/logger"
)

// DB represents a database connection
type DB struct {
	conn   *sqlx.DB
	driver string
	log    *zap.Logger

	// Upper bound for a single store call, 0 disables it
	timeout time.Duration

	// Serializes rank recomputes
	rankMu sync.Mutex

	// Prepared statements cache
	stmtCache struct {
		sync.RWMutex
		statements map[string]*sqlx.Stmt
	}
}

// New connects to the store selected by cfg.StoreDriver
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*DB, error) {
	l := logger.OrNop(log)

	var dsn string
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		dsn = cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		l.Info("Opening sqlite database", zap.String("path", cfg.SQLitePath))
	case config.DriverPostgres:
		dsn = fmt.Sprintf(
			"user=%s password=%s dbname=%s port=%s host=%s sslmode=disable",
			cfg.PostgresUser,
			cfg.PostgresPassword,
			cfg.PostgresDB,
			cfg.PostgresPort,
			cfg.PostgresHost,
		)
		l.Info("Connecting to database",
			zap.String("host", cfg.PostgresHost),
			zap.String("port", cfg.PostgresPort),
			zap.String("dbname", cfg.PostgresDB))
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidInput, cfg.StoreDriver)
	}

	database, err := Open(ctx, cfg.StoreDriver, dsn, l)
	if err != nil {
		return nil, err
	}

	database.SetQueryTimeout(cfg.StoreTimeout)

	if cfg.StoreDriver == config.DriverPostgres {
		database.conn.SetMaxOpenConns(cfg.MaxOpenConns)
		database.conn.SetMaxIdleConns(cfg.MaxIdleConns)
		database.conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

		l.Info("Database connection established",
			zap.Int("max_open_conns", cfg.MaxOpenConns),
			zap.Int("max_idle_conns", cfg.MaxIdleConns),
			zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime))
	}

	return database, nil
}

// Open connects with an explicit driver name and DSN
func Open(ctx context.Context, driverName, dsn string, log *zap.Logger) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	// SQLite allows a single writer
	if driverName == config.DriverSQLite {
		conn.SetMaxOpenConns(1)
	}

	return newDB(conn, driverName, log), nil
}

func newDB(conn *sqlx.DB, driverName string, log *zap.Logger) *DB {
	database := &DB{
		conn:   conn,
		driver: driverName,
		log:    logger.OrNop(log),
	}
	database.stmtCache.statements = make(map[string]*sqlx.Stmt)
	return database
}

// SetQueryTimeout bounds every store call, including the wait for a pooled
// connection. Zero or less disables the bound.
func (db *DB) SetQueryTimeout(d time.Duration) {
	db.timeout = d
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.timeout)
}

// Ping checks that the store is reachable
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}
	return nil
}

// getStmt returns a prepared statement from cache or creates a new one
func (db *DB) getStmt(ctx context.Context, query string) (*sqlx.Stmt, error) {
	db.stmtCache.RLock()
	stmt, exists := db.stmtCache.statements[query]
	db.stmtCache.RUnlock()

	if exists {
		return stmt, nil
	}

	db.stmtCache.Lock()
	defer db.stmtCache.Unlock()

	// Double-check after acquiring write lock
	if stmt, exists = db.stmtCache.statements[query]; exists {
		return stmt, nil
	}

	stmt, err := db.conn.PreparexContext(ctx, db.conn.Rebind(query))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", classify(err))
	}

	db.stmtCache.statements[query] = stmt
	return stmt, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.stmtCache.Lock()
	for _, stmt := range db.stmtCache.statements {
		stmt.Close()
	}
	db.stmtCache.statements = make(map[string]*sqlx.Stmt)
	db.stmtCache.Unlock()

	return db.conn.Close()
}
