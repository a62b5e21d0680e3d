package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite store behind the calendar source and appointment
// ledger interfaces. All timestamps are stored in UTC.
type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, log: logger.With().Str("component", "database").Logger()}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS salons (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            slug TEXT UNIQUE NOT NULL,
            timezone TEXT NOT NULL,
            currency TEXT NOT NULL DEFAULT 'EUR',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS staff (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            display_name TEXT NOT NULL,
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_bookable_online BOOLEAN NOT NULL DEFAULT 1,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS service_categories (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            name TEXT NOT NULL,
            slug TEXT NOT NULL,
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            category_id TEXT,
            name TEXT NOT NULL,
            slug TEXT NOT NULL,
            base_duration_minutes INTEGER NOT NULL,
            buffer_before_minutes INTEGER NOT NULL DEFAULT 0,
            buffer_after_minutes INTEGER NOT NULL DEFAULT 0,
            current_price_cents INTEGER NOT NULL,
            tax_rate_percent REAL NOT NULL DEFAULT 0,
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_bookable_online BOOLEAN NOT NULL DEFAULT 1,
            requires_deposit BOOLEAN NOT NULL DEFAULT 0,
            deposit_amount_cents INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS customers (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            profile_id TEXT NOT NULL,
            loyalty_tier TEXT,
            total_visits INTEGER NOT NULL DEFAULT 0,
            total_spend_cents INTEGER NOT NULL DEFAULT 0,
            accepts_marketing_email BOOLEAN NOT NULL DEFAULT 0,
            accepts_marketing_sms BOOLEAN NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS opening_hours (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            day_of_week TEXT NOT NULL,
            open_time_minutes INTEGER NOT NULL,
            close_time_minutes INTEGER NOT NULL,
            is_closed BOOLEAN NOT NULL DEFAULT 0,
            UNIQUE(salon_id, day_of_week)
        )`,
		`CREATE TABLE IF NOT EXISTS staff_working_hours (
            id TEXT PRIMARY KEY,
            staff_id TEXT NOT NULL REFERENCES staff(id),
            day_of_week TEXT NOT NULL,
            start_time_minutes INTEGER NOT NULL,
            end_time_minutes INTEGER NOT NULL,
            is_day_off BOOLEAN NOT NULL DEFAULT 0,
            UNIQUE(staff_id, day_of_week)
        )`,
		`CREATE TABLE IF NOT EXISTS blocked_times (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            staff_id TEXT,
            starts_at DATETIME NOT NULL,
            ends_at DATETIME NOT NULL,
            block_type TEXT NOT NULL,
            reason TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS booking_rules (
            id TEXT PRIMARY KEY,
            salon_id TEXT UNIQUE NOT NULL REFERENCES salons(id),
            min_lead_time_minutes INTEGER NOT NULL DEFAULT 0,
            max_booking_horizon_days INTEGER NOT NULL DEFAULT 90,
            cancellation_cutoff_hours INTEGER NOT NULL DEFAULT 24,
            cancellation_fee_percent INTEGER NOT NULL DEFAULT 50,
            slot_granularity_minutes INTEGER NOT NULL DEFAULT 15,
            default_visit_buffer_minutes INTEGER NOT NULL DEFAULT 0,
            reservation_ttl_minutes INTEGER NOT NULL DEFAULT 10,
            max_concurrent_reservations INTEGER NOT NULL DEFAULT 5,
            default_deposit_required BOOLEAN NOT NULL DEFAULT 0,
            default_deposit_percent INTEGER NOT NULL DEFAULT 0,
            minimum_deposit_amount_cents INTEGER NOT NULL DEFAULT 0,
            no_show_policy TEXT NOT NULL DEFAULT 'none',
            no_show_fee_cents INTEGER NOT NULL DEFAULT 0,
            allow_multi_service_booking BOOLEAN NOT NULL DEFAULT 1,
            max_services_per_booking INTEGER NOT NULL DEFAULT 3,
            requires_approval BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id TEXT PRIMARY KEY,
            salon_id TEXT NOT NULL REFERENCES salons(id),
            customer_id TEXT NOT NULL REFERENCES customers(id),
            staff_id TEXT NOT NULL REFERENCES staff(id),
            starts_at DATETIME NOT NULL,
            ends_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'reserved',
            service_ids TEXT NOT NULL DEFAULT '',
            reserved_until DATETIME,
            buffer_before_minutes INTEGER NOT NULL DEFAULT 0,
            buffer_after_minutes INTEGER NOT NULL DEFAULT 0,
            deposit_required BOOLEAN NOT NULL DEFAULT 0,
            deposit_paid BOOLEAN NOT NULL DEFAULT 0,
            deposit_amount_cents INTEGER NOT NULL DEFAULT 0,
            total_price_cents INTEGER NOT NULL DEFAULT 0,
            customer_notes TEXT NOT NULL DEFAULT '',
            staff_notes TEXT NOT NULL DEFAULT '',
            cancelled_at DATETIME,
            cancelled_by TEXT NOT NULL DEFAULT '',
            cancellation_reason TEXT NOT NULL DEFAULT '',
            no_show_marked_at DATETIME,
            no_show_fee_charged BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (starts_at < ends_at)
        )`,
		`CREATE TABLE IF NOT EXISTS appointment_services (
            id TEXT PRIMARY KEY,
            appointment_id TEXT NOT NULL REFERENCES appointments(id),
            service_id TEXT NOT NULL,
            snapshot_service_name TEXT NOT NULL,
            snapshot_price_cents INTEGER NOT NULL,
            snapshot_tax_rate_percent REAL NOT NULL DEFAULT 0,
            snapshot_duration_minutes INTEGER NOT NULL,
            sort_order INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS appointment_transitions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            appointment_id TEXT NOT NULL REFERENCES appointments(id),
            from_status TEXT NOT NULL,
            to_status TEXT NOT NULL,
            actor_role TEXT NOT NULL,
            actor_id TEXT NOT NULL DEFAULT '',
            reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_staff_salon_id ON staff(salon_id)`,
		`CREATE INDEX IF NOT EXISTS idx_services_salon_id ON services(salon_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_staff_starts ON appointments(staff_id, starts_at)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_customer ON appointments(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_reserved_until ON appointments(reserved_until)`,
		`CREATE INDEX IF NOT EXISTS idx_appointment_services_appt ON appointment_services(appointment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_appt ON appointment_transitions(appointment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_times_staff ON blocked_times(staff_id, starts_at)`,
		`CREATE TRIGGER IF NOT EXISTS trg_appointment_services_immutable
            BEFORE UPDATE ON appointment_services
            BEGIN
                SELECT RAISE(ABORT, 'appointment service snapshots are immutable');
            END`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
