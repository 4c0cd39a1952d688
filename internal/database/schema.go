package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the admission service.  seat_pools has
// one row per (customer, variant) and exists only to be locked; every
// admission transaction takes it FOR UPDATE before counting seats.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		customer_id   BIGINT UNSIGNED NOT NULL,
		login         VARCHAR(191)    NOT NULL UNIQUE,
		full_name     VARCHAR(255)    NOT NULL DEFAULT '',
		password_hash VARCHAR(255)    NOT NULL,
		is_active     TINYINT(1)      NOT NULL DEFAULT 1,
		created_at    DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_users_customer (customer_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS customer_licenses (
		customer_id BIGINT UNSIGNED NOT NULL,
		license_key VARCHAR(64)     NOT NULL,
		seats       INT UNSIGNED    NOT NULL DEFAULT 0,
		PRIMARY KEY (customer_id, license_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_pools (
		customer_id BIGINT UNSIGNED NOT NULL,
		app_variant VARCHAR(32)     NOT NULL,
		PRIMARY KEY (customer_id, app_variant)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_assignments (
		app_variant      VARCHAR(32)     NOT NULL,
		user_id          BIGINT UNSIGNED NOT NULL,
		customer_id      BIGINT UNSIGNED NOT NULL,
		active           TINYINT(1)      NOT NULL,
		reason           VARCHAR(64)     NULL,
		device_id        VARCHAR(64)     NOT NULL,
		token_ref        VARCHAR(64)     NOT NULL DEFAULT '',
		last_activity_at DATETIME        NOT NULL,
		created_at       DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (app_variant, user_id),
		KEY idx_seat_pool_active (app_variant, customer_id, active),
		KEY idx_seat_idle (active, last_activity_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.  Existing tables are left untouched.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
