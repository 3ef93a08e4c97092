package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// ConnectDB opens the MySQL pool described by env and pings it. The caller
// owns the returned handle and closes it on shutdown.
func ConnectDB(ctx context.Context, env Env) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(env.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	// Timestamps are stored and read back in UTC.
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(env.DBMaxOpenConns)
	db.SetMaxIdleConns(env.DBMaxOpenConns)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db %s@%s/%s: %w", cfg.User, cfg.Addr, cfg.DBName, err)
	}

	log.Info().Str("module", "db").Str("addr", cfg.Addr).Str("database", cfg.DBName).Msg("connected to MySQL")
	return db, nil
}
