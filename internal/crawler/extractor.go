package crawler

import (
	"math/big"

	"sold-crawler/internal"
	"sold-crawler/pkg/models"
)

// fieldMapping copies one optional source field into one column.
type fieldMapping struct {
	source string
	set    func(row *models.Row, value string)
}

var recordFields = []fieldMapping{
	{"date", func(r *models.Row, v string) { r.DateSold = v }},
	{"price", func(r *models.Row, v string) { r.Price = v }},
	{"sqft", func(r *models.Row, v string) { r.SquareFootage = v }},
	{"lotsize", func(r *models.Row, v string) { r.LotSize = v }},
	{"beds", func(r *models.Row, v string) { r.NumberBedrooms = v }},
	{"baths", func(r *models.Row, v string) { r.NumberBathrooms = v }},
	{"year_built", func(r *models.Row, v string) { r.YearBuilt = v }},
	{"type", func(r *models.Row, v string) { r.PropertyType = v }},
	{"neighborhood", func(r *models.Row, v string) { r.Neighborhood = v }},
}

var parcelFields = []fieldMapping{
	{"latitude", func(r *models.Row, v string) { r.Latitude = v }},
	{"longitude", func(r *models.Row, v string) { r.Longitude = v }},
}

var addressFields = []fieldMapping{
	{"number", func(r *models.Row, v string) { r.StreetNumber = v }},
	{"city", func(r *models.Row, v string) { r.City = v }},
	{"state", func(r *models.Row, v string) { r.State = v }},
	{"zip", func(r *models.Row, v string) { r.ZipCode = v }},
}

// Extraction is the result of normalizing one payload.
type Extraction struct {
	Rows []models.Row

	// Records is how many raw records were seen; each consumed one ID.
	Records int

	// Dropped counts records without an address object.
	Dropped int
}

// Extract normalizes every record of a successful payload. An absent or
// unsuccessful payload yields nothing and consumes no IDs.
//
// An ID is taken for every record before the address check, so dropped
// records leave gaps in the ID sequence. Existing consumers of the output
// rely on that numbering.
func Extract(payload *models.Payload, ids *internal.IDGenerator) Extraction {
	var out Extraction
	if !payload.OK() {
		return out
	}

	for _, rec := range payload.Records {
		out.Records++
		row, ok := NormalizeRecord(rec, ids.Next())
		if !ok {
			out.Dropped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// NormalizeRecord maps one raw record onto a row with the given ID. It
// reports false when the record has no address object and must be dropped.
func NormalizeRecord(rec models.Record, id int64) (models.Row, bool) {
	row := models.Row{PropertyID: id}

	applyFields(rec, recordFields, &row)
	if v, ok := TimeUntilSold(rec); ok {
		row.TimeUntilSold = v
	}

	if parcel, ok := rec.Object("parcel"); ok {
		applyFields(parcel, parcelFields, &row)
	}

	address, ok := rec.Object("address_data")
	if !ok {
		return row, false
	}
	applyFields(address, addressFields, &row)
	if v, ok := StreetName(address); ok {
		row.StreetName = v
	}
	return row, true
}

// Field returns the verbatim cell value for key when it is present.
func Field(rec models.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return "", false
	}
	return models.FormatValue(v), true
}

// TimeUntilSold is date minus listing_added, both read as integers. It is
// only set when both are present and numeric.
func TimeUntilSold(rec models.Record) (string, bool) {
	sold, ok := rec.Get("date")
	if !ok {
		return "", false
	}
	listed, ok := rec.Get("listing_added")
	if !ok {
		return "", false
	}

	soldN, ok := models.IntValue(sold)
	if !ok {
		return "", false
	}
	listedN, ok := models.IntValue(listed)
	if !ok {
		return "", false
	}
	// Exact even where int64 subtraction would overflow.
	return new(big.Int).Sub(big.NewInt(soldN), big.NewInt(listedN)).String(), true
}

// StreetName joins street and type. Either one alone, or null, yields
// nothing.
func StreetName(address models.Record) (string, bool) {
	street, ok := nonNullField(address, "street")
	if !ok {
		return "", false
	}
	kind, ok := nonNullField(address, "type")
	if !ok {
		return "", false
	}
	return street + " " + kind, true
}

func nonNullField(rec models.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	return models.FormatValue(v), true
}

func applyFields(rec models.Record, fields []fieldMapping, row *models.Row) {
	for _, f := range fields {
		if v, ok := Field(rec, f.source); ok {
			f.set(row, v)
		}
	}
}
