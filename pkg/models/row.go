package models

// Columns is the fixed output schema, in file order.
var Columns = []string{
	"property_id", "date_sold", "price", "square_footage", "lot_size",
	"number_bedrooms", "number_bathrooms", "year_built", "latitude",
	"longitude", "property_type", "street_number", "street_name",
	"neighborhood", "city", "state", "zip_code", "time_until_sold",
}

// Row is one normalized sold property. Only PropertyID is always set; every
// other field is empty when the source record did not carry it.
type Row struct {
	PropertyID      int64  `json:"property_id"`
	DateSold        string `json:"date_sold,omitempty"`
	Price           string `json:"price,omitempty"`
	SquareFootage   string `json:"square_footage,omitempty"`
	LotSize         string `json:"lot_size,omitempty"`
	NumberBedrooms  string `json:"number_bedrooms,omitempty"`
	NumberBathrooms string `json:"number_bathrooms,omitempty"`
	YearBuilt       string `json:"year_built,omitempty"`
	Latitude        string `json:"latitude,omitempty"`
	Longitude       string `json:"longitude,omitempty"`
	PropertyType    string `json:"property_type,omitempty"`
	StreetNumber    string `json:"street_number,omitempty"`
	StreetName      string `json:"street_name,omitempty"`
	Neighborhood    string `json:"neighborhood,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	ZipCode         string `json:"zip_code,omitempty"`
	TimeUntilSold   string `json:"time_until_sold,omitempty"`

	// RegionID is where the row came from. It is not part of the CSV schema.
	RegionID int `json:"region_id"`

	// TraceParent links the row to its region's fetch trace.
	TraceParent string `json:"-"`
}

// Values returns the row's cells in Columns order.
func (r Row) Values() []string {
	return []string{
		FormatValue(r.PropertyID),
		r.DateSold,
		r.Price,
		r.SquareFootage,
		r.LotSize,
		r.NumberBedrooms,
		r.NumberBathrooms,
		r.YearBuilt,
		r.Latitude,
		r.Longitude,
		r.PropertyType,
		r.StreetNumber,
		r.StreetName,
		r.Neighborhood,
		r.City,
		r.State,
		r.ZipCode,
		r.TimeUntilSold,
	}
}
