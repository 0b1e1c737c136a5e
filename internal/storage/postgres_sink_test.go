package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"

	"sold-crawler/pkg/models"
)

func TestNullable(t *testing.T) {
	if v := nullable(""); v.Valid {
		t.Error("Empty cell should be NULL")
	}
	if v := nullable("0"); !v.Valid || v.String != "0" {
		t.Errorf("Expected valid \"0\", got %+v", v)
	}
}

func TestPostgresSink_EmptyBatch(t *testing.T) {
	// No database needed: an empty batch must not open a transaction.
	sink := NewPostgresSink(NewStorage(nil), uuid.New())
	if err := sink.Save(nil); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
}

// TestPostgresSink_Integration needs a disposable database in TEST_DB_URL.
func TestPostgresSink_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store := NewStorage(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	runID := uuid.New()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM sold_properties WHERE run_id = $1`, runID)
	})

	sink := NewPostgresSink(store, runID)
	batch := []models.Row{
		{PropertyID: 1, RegionID: 243, Price: "500000", StreetName: "Main St"},
		{PropertyID: 2, RegionID: 243},
	}
	if err := sink.Save(batch); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Replaying a batch is a no-op.
	if err := sink.Save(batch); err != nil {
		t.Fatalf("Save replay: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sold_properties WHERE run_id = $1`, runID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows, got %d", count)
	}

	var price, street sql.NullString
	err = db.QueryRow(`SELECT price, street_name FROM sold_properties WHERE run_id = $1 AND property_id = 2`, runID).Scan(&price, &street)
	if err != nil {
		t.Fatal(err)
	}
	if price.Valid || street.Valid {
		t.Errorf("Empty cells should be NULL, got %+v %+v", price, street)
	}
}
