package database

import (
	"context"
	"fmt"
)

// Constraint names the repository maps back to domain errors
const (
	ConstraintWindowNoOverlap      = "availability_windows_no_overlap"
	ConstraintBookingNoOverlap     = "bookings_no_overlap"
	ConstraintBookingOnePerPatient = "bookings_one_per_patient_day"
)

// CreateSchema creates the booking schema. It is idempotent.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createDoctorsTable,
		createAvailabilityWindowsTable,
		createBookingsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createAvailabilityWindowsIndexes,
		createBookingsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		// gist exclusion constraints mixing text equality and range overlap
		`CREATE EXTENSION IF NOT EXISTS "btree_gist";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return err
		}
	}

	return nil
}

const (
	createDoctorsTable = `
		CREATE TABLE IF NOT EXISTS doctors (
			id TEXT PRIMARY KEY,
			name VARCHAR(200) NOT NULL DEFAULT '',
			role VARCHAR(20) NOT NULL DEFAULT 'DOCTOR',
			specialty VARCHAR(100) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createAvailabilityWindowsTable = `
		CREATE TABLE IF NOT EXISTS availability_windows (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			date DATE NOT NULL,
			start_minute INTEGER NOT NULL CHECK (start_minute >= 0 AND start_minute < 1440),
			end_minute INTEGER NOT NULL CHECK (end_minute >= 0 AND end_minute < 1440),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			CHECK (start_minute < end_minute),
			CONSTRAINT availability_windows_no_overlap EXCLUDE USING gist (
				doctor_id WITH =,
				date WITH =,
				int4range(start_minute, end_minute) WITH &&
			)
		);`

	createBookingsTable = `
		CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			date DATE NOT NULL,
			start_minute INTEGER NOT NULL CHECK (start_minute >= 0 AND start_minute < 1440),
			end_minute INTEGER NOT NULL CHECK (end_minute >= 0 AND end_minute < 1440),
			duration INTEGER NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
				CHECK (status IN ('PENDING', 'ACCEPTED', 'REJECTED', 'CANCELLED')),
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			CHECK (start_minute < end_minute),
			CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
				doctor_id WITH =,
				date WITH =,
				int4range(start_minute, end_minute) WITH &&
			) WHERE (status <> 'CANCELLED')
		);`

	createAvailabilityWindowsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_availability_windows_doctor_date ON availability_windows(doctor_id, date);
		CREATE INDEX IF NOT EXISTS idx_availability_windows_date ON availability_windows(date);`

	createBookingsIndexes = `
		CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_per_patient_day
			ON bookings(doctor_id, patient_id, date) WHERE status <> 'CANCELLED';
		CREATE INDEX IF NOT EXISTS idx_bookings_doctor_date ON bookings(doctor_id, date);
		CREATE INDEX IF NOT EXISTS idx_bookings_patient_id ON bookings(patient_id);
		CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);`
)
