package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

type tableDDL struct {
	name string
	ddl  string
}

var tables = []tableDDL{
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	from_city VARCHAR(255) NOT NULL,
	to_city VARCHAR(255) NOT NULL,
	trip_date CHAR(10) NOT NULL,
	trip_time CHAR(5) NOT NULL,
	driver_name VARCHAR(255) NOT NULL,
	seats_total INT NOT NULL,
	seats_taken INT NOT NULL DEFAULT 0,
	created_at DATETIME(6) NOT NULL,
	KEY idx_trips_date_time (trip_date, trip_time),
	CONSTRAINT chk_trips_seats CHECK (seats_taken >= 0 AND seats_taken <= seats_total)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"join_requests", `
CREATE TABLE IF NOT EXISTS join_requests (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	trip_id VARCHAR(36) NOT NULL,
	user_id VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	KEY idx_join_requests_trip (trip_id),
	KEY idx_join_requests_trip_user (trip_id, user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"chat_messages", `
CREATE TABLE IF NOT EXISTS chat_messages (
	seq BIGINT AUTO_INCREMENT PRIMARY KEY,
	id VARCHAR(36) NOT NULL,
	trip_id VARCHAR(36) NOT NULL,
	user_id VARCHAR(255) NOT NULL DEFAULT '',
	user_name VARCHAR(255) NOT NULL,
	text TEXT NOT NULL,
	created_at DATETIME(6) NOT NULL,
	UNIQUE KEY uniq_chat_messages_id (id),
	KEY idx_chat_messages_trip_created (trip_id, created_at, seq)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
	{"cities", `
CREATE TABLE IF NOT EXISTS cities (
	id INT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	lat DOUBLE NOT NULL,
	lng DOUBLE NOT NULL,
	UNIQUE KEY uniq_cities_name (name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`},
}

// Migrate creates any missing table. Existing tables are never altered.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, t := range tables {
		exists, err := HasTable(ctx, conn, t.name)
		if err != nil {
			return fmt.Errorf("check table %s: %w", t.name, err)
		}
		if exists {
			continue
		}
		if _, err := conn.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		log.Info().Str("module", "db").Str("table", t.name).Msg("table created")
	}
	return nil
}
