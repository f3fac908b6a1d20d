package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Settings describe how to reach the MySQL/TiDB server
type Settings struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// Connection wraps the pooled *sql.DB.
// sql.DB is already safe for concurrent use; no extra locking here.
type Connection struct {
	db *sql.DB
}

var tlsOnce sync.Once // TLS config may only be registered once per process

// DSN renders the driver data source name. Remote hosts get TLS.
func (s Settings) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", s.Host, s.Port)
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if s.remote() {
		cfg.TLSConfig = "tidb"
	}
	return cfg.FormatDSN()
}

func (s Settings) remote() bool {
	return s.Host != "" && s.Host != "127.0.0.1" && s.Host != "localhost"
}

// Open connects and pings the server
func Open(ctx context.Context, s Settings) (*Connection, error) {
	if s.remote() {
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("tidb", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: s.Host,
			}); err != nil {
				zap.L().Error("failed to register TLS config", zap.Error(err))
			}
		})
	}

	db, err := sql.Open("mysql", s.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// MaxIdleConns matches MaxOpenConns so connections are not churned under load
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(100)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zap.L().Info("🗄️ Database connected", zap.String("host", s.Host), zap.String("database", s.Database))
	return &Connection{db: db}, nil
}

// DB returns the underlying *sql.DB
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Health checks that the server still answers
func (c *Connection) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
