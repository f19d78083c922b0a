package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/kolektywmuzulmanow/halal-mapa/pkg/models"
	_ "github.com/lib/pq"
)

// ConnConfig describes how to reach the database
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (c ConnConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// DB wraps the connection pool shared by the key-value store and the place mirror
type DB struct {
	db *sql.DB
}

// Open connects and pings the database
func Open(ctx context.Context, cfg ConnConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{db: db}, nil
}

// Close closes the database connection
func (p *DB) Close() error {
	return p.db.Close()
}

const kvSchema = `CREATE TABLE IF NOT EXISTS app_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// KVStore is a favourites.Backend over a single key-value table
type KVStore struct {
	db *sql.DB
}

// KV creates the key-value table if needed and returns the store
func (p *DB) KV(ctx context.Context) (*KVStore, error) {
	if _, err := p.db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("failed to create app_kv: %w", err)
	}
	return &KVStore{db: p.db}, nil
}

// Get returns found=false when the key has no row
func (k *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := k.db.QueryRowContext(ctx, `SELECT value FROM app_kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Set upserts the value; the last writer wins
func (k *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO app_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// mirrorSchema keeps the fetched sheet queryable with PostGIS.
// Rows are positional because place names are not unique.
var mirrorSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis;`,
	`CREATE TABLE IF NOT EXISTS places (
		position INTEGER PRIMARY KEY,
		name     TEXT NOT NULL,
		category TEXT NOT NULL,
		address  TEXT NOT NULL,
		location GEOMETRY(POINT, 4326)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_places_location ON places USING GIST(location);`,
}

// PlaceMirror copies the place list into PostGIS for ad-hoc spatial queries
type PlaceMirror struct {
	db *sql.DB
}

// Mirror creates the places table and spatial index if needed
func (p *DB) Mirror(ctx context.Context) (*PlaceMirror, error) {
	for _, query := range mirrorSchema {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return &PlaceMirror{db: p.db}, nil
}

// Replace swaps the table contents for places in one transaction.
// Places without valid coordinates are stored with a NULL location.
func (m *PlaceMirror) Replace(ctx context.Context, places []models.Place) error {
	start := time.Now()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM places`); err != nil {
		return fmt.Errorf("failed to clear places: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO places (position, name, category, address, location)
		VALUES ($1, $2, $3, $4,
			CASE WHEN $5::double precision IS NULL THEN NULL
			ELSE ST_SetSRID(ST_MakePoint($5, $6), 4326) END)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, place := range places {
		lon, lat := nullableCoords(place.Location())
		if _, err := stmt.ExecContext(ctx, i, place.Name, place.Category, place.Address, lon, lat); err != nil {
			return fmt.Errorf("failed to insert place %q: %w", place.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	log.Printf("Mirrored %d places to PostGIS in %v", len(places), time.Since(start))
	return nil
}

// QueryBox returns the mirrored places inside box in sheet order
func (m *PlaceMirror) QueryBox(ctx context.Context, box models.BoundingBox) ([]models.Place, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, category, address, ST_Y(location) AS lat, ST_X(location) AS lon
		FROM places
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY position
	`, box.BottomLeft.Lon, box.BottomLeft.Lat, box.TopRight.Lon, box.TopRight.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []models.Place
	for rows.Next() {
		var p models.Place
		if err := rows.Scan(&p.Name, &p.Category, &p.Address, &p.Latitude, &p.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Count returns the number of mirrored places
func (m *PlaceMirror) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM places").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count places: %w", err)
	}
	return count, nil
}

// nullableCoords maps an invalid location to SQL NULLs
func nullableCoords(loc models.Location) (lon, lat sql.NullFloat64) {
	if !loc.Valid() {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Lon, Valid: true}, sql.NullFloat64{Float64: loc.Lat, Valid: true}
}
