package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type DB struct {
	conn *sql.DB
}

func NewDB(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	log.Println("✅ Local database initialized")
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) GetConnection() *sql.DB {
	return db.conn
}

// bootstrap creates the local journal tables. The journal is service-local
// state; the shared mirror guardians observe lives in Firestore.
func (db *DB) bootstrap() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sos_settings (
			storage_key TEXT PRIMARY KEY,
			payload     JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS alert_journal (
			id                SERIAL PRIMARY KEY,
			alert_id          TEXT NOT NULL UNIQUE,
			user_id           TEXT NOT NULL,
			type              TEXT NOT NULL,
			status            TEXT NOT NULL,
			latitude          DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy          DOUBLE PRECISION NOT NULL DEFAULT 0,
			address           TEXT NOT NULL DEFAULT '',
			message           TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at       TIMESTAMPTZ,
			resolved_by       TEXT,
			resolution_reason TEXT
		);

		CREATE TABLE IF NOT EXISTS delivery_log (
			id            SERIAL PRIMARY KEY,
			alert_id      TEXT NOT NULL,
			channel       TEXT NOT NULL,
			target        TEXT NOT NULL,
			mechanism     TEXT NOT NULL,
			success       BOOLEAN NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS invalid_tokens (
			token       TEXT PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			cleared     BOOLEAN NOT NULL DEFAULT FALSE
		);
	`

	_, err := db.conn.Exec(schema)
	return err
}
