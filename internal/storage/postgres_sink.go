package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib" // Import the driver

	"sold-crawler/pkg/models"
)

type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// EnsureSchema creates the mirror table if it does not exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sold_properties (
			run_id           UUID   NOT NULL,
			property_id      BIGINT NOT NULL,
			region_id        INTEGER NOT NULL,
			date_sold        TEXT,
			price            TEXT,
			square_footage   TEXT,
			lot_size         TEXT,
			number_bedrooms  TEXT,
			number_bathrooms TEXT,
			year_built       TEXT,
			latitude         TEXT,
			longitude        TEXT,
			property_type    TEXT,
			street_number    TEXT,
			street_name      TEXT,
			neighborhood     TEXT,
			city             TEXT,
			state            TEXT,
			zip_code         TEXT,
			time_until_sold  TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, property_id)
		);
		CREATE INDEX IF NOT EXISTS idx_sold_properties_region ON sold_properties(region_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PostgresSink mirrors rows into Postgres, tagged with the run they came from.
type PostgresSink struct {
	*Storage
	RunID uuid.UUID
}

func NewPostgresSink(s *Storage, runID uuid.UUID) *PostgresSink {
	return &PostgresSink{Storage: s, RunID: runID}
}

func (s *PostgresSink) Save(batch []models.Row) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO sold_properties (run_id, property_id, region_id,
			date_sold, price, square_footage, lot_size, number_bedrooms, number_bathrooms,
			year_built, latitude, longitude, property_type, street_number, street_name,
			neighborhood, city, state, zip_code, time_until_sold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (run_id, property_id) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		_, err := stmt.Exec(
			s.RunID, r.PropertyID, r.RegionID,
			nullable(r.DateSold), nullable(r.Price), nullable(r.SquareFootage), nullable(r.LotSize),
			nullable(r.NumberBedrooms), nullable(r.NumberBathrooms), nullable(r.YearBuilt),
			nullable(r.Latitude), nullable(r.Longitude), nullable(r.PropertyType),
			nullable(r.StreetNumber), nullable(r.StreetName), nullable(r.Neighborhood),
			nullable(r.City), nullable(r.State), nullable(r.ZipCode), nullable(r.TimeUntilSold),
		)
		if err != nil {
			// A failed statement aborts the transaction, so stop here.
			return fmt.Errorf("insert property %d: %w", r.PropertyID, err)
		}
	}

	return tx.Commit()
}

// nullable stores empty cells as NULL.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
