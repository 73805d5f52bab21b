package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the booking tables.  seat_bookings.order_id has no
// foreign key: orders may be removed out of band and the resulting orphans
// are reclaimed by the health sweep.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS zones (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name       VARCHAR(100)    NOT NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_zones_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seats (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		zone_id     BIGINT UNSIGNED NOT NULL,
		seat_number VARCHAR(16)     NOT NULL,
		status      ENUM('AVAILABLE','RESERVED','BOOKED','PAID','LOCKED','EMPTY') NOT NULL DEFAULT 'AVAILABLE',
		lock_expiry DATETIME        NULL,
		locked_by   BIGINT UNSIGNED NULL,
		created_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seats_zone_number (zone_id, seat_number),
		KEY idx_seats_status_expiry (status, lock_expiry),
		CONSTRAINT fk_seats_zone FOREIGN KEY (zone_id) REFERENCES zones (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_number       VARCHAR(32)     NOT NULL,
		user_id            BIGINT UNSIGNED NOT NULL,
		ticket_type        ENUM('STANDARD','VIP','STANDING') NOT NULL,
		show_date          DATE            NOT NULL,
		quantity           INT UNSIGNED    NOT NULL,
		total_amount_cents INT UNSIGNED    NOT NULL DEFAULT 0,
		status             ENUM('PENDING','CONFIRMED','PAID','CANCELLED','EXPIRED') NOT NULL DEFAULT 'PENDING',
		expires_at         DATETIME        NOT NULL,
		created_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_orders_number (order_number),
		KEY idx_orders_status_expiry (status, expires_at),
		KEY idx_orders_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_bookings (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id   BIGINT UNSIGNED NOT NULL,
		seat_id    BIGINT UNSIGNED NOT NULL,
		show_date  DATE            NOT NULL,
		status     ENUM('PENDING','CONFIRMED','PAID','CANCELLED','EXPIRED') NOT NULL DEFAULT 'PENDING',
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_bookings_seat_date_status (seat_id, show_date, status),
		KEY idx_bookings_order (order_id),
		CONSTRAINT fk_bookings_seat FOREIGN KEY (seat_id) REFERENCES seats (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  Statements are idempotent so it is
// safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
