package database

import "fmt"

// createDriversTable создает таблицу водителей
const createDriversTable = `
CREATE TABLE IF NOT EXISTS drivers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	vehicle_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'offline',
	current_lat DOUBLE PRECISION,
	current_lng DOUBLE PRECISION,
	rating DOUBLE PRECISION NOT NULL DEFAULT 5,
	total_deliveries INTEGER NOT NULL DEFAULT 0,
	completion_rate DOUBLE PRECISION NOT NULL DEFAULT 100,
	preferred_zones TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	last_location_update TIMESTAMPTZ
);
`

// createDeliveriesTable создает таблицу доставок
const createDeliveriesTable = `
CREATE TABLE IF NOT EXISTS deliveries (
	id UUID PRIMARY KEY,
	order_id TEXT NOT NULL,
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	pickup_lat DOUBLE PRECISION NOT NULL,
	pickup_lng DOUBLE PRECISION NOT NULL,
	pickup_address TEXT NOT NULL DEFAULT '',
	pickup_city TEXT NOT NULL DEFAULT '',
	pickup_district TEXT NOT NULL DEFAULT '',
	delivery_lat DOUBLE PRECISION NOT NULL,
	delivery_lng DOUBLE PRECISION NOT NULL,
	delivery_address TEXT NOT NULL DEFAULT '',
	delivery_city TEXT NOT NULL DEFAULT '',
	delivery_district TEXT NOT NULL DEFAULT '',
	driver_id UUID REFERENCES drivers(id),
	driver_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	current_lat DOUBLE PRECISION,
	current_lng DOUBLE PRECISION,
	scheduled_pickup TIMESTAMPTZ,
	scheduled_delivery TIMESTAMPTZ,
	actual_pickup TIMESTAMPTZ,
	actual_delivery TIMESTAMPTZ,
	estimated_arrival TIMESTAMPTZ,
	package_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	package_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
	package_description TEXT NOT NULL DEFAULT '',
	delivery_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
	cod_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_paid BOOLEAN NOT NULL DEFAULT FALSE,
	proof_signature TEXT,
	proof_photo_url TEXT,
	proof_receiver_name TEXT,
	proof_notes TEXT,
	proof_submitted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// createTrackingEventsTable создает таблицу истории отслеживания.
// Таблица только пополняется, записи никогда не изменяются и не удаляются.
const createTrackingEventsTable = `
CREATE TABLE IF NOT EXISTS tracking_events (
	id UUID PRIMARY KEY,
	delivery_id UUID NOT NULL REFERENCES deliveries(id),
	status TEXT NOT NULL,
	lat DOUBLE PRECISION,
	lng DOUBLE PRECISION,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// createZonesTable создает таблицу зон обслуживания
const createZonesTable = `
CREATE TABLE IF NOT EXISTS zones (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	name_ar TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL,
	district TEXT NOT NULL DEFAULT '',
	delivery_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_order_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_time INTEGER NOT NULL DEFAULT 60,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_drivers_status ON drivers(status);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_driver_id ON deliveries(driver_id);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_events_delivery_id ON tracking_events(delivery_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_zones_city ON zones(city);`,
}

// InitSchema создает таблицы и индексы, если они еще не существуют
func (db *DB) InitSchema() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		createDriversTable,
		createDeliveriesTable,
		createTrackingEventsTable,
		createZonesTable,
	}
	statements = append(statements, createIndexes...)

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
