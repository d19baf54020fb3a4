package domain

import "time"

// Status values a vehicle can hold. The pipeline only ever writes
// StatusAvailable (on first appearance) and StatusSold (by omission);
// the rest are set manually from the admin console.
const (
	StatusAvailable = "Available"
	StatusReserved  = "Reserved"
	StatusPending   = "Pending"
	StatusSold      = "Sold"
	StatusHidden    = "Hidden"
)

// Defaults applied when the feed omits an optional field, so downstream
// display code never sees a null.
const (
	DefaultBodyType     = "Other"
	DefaultFuelType     = "Gasoline"
	DefaultTransmission = "Automatic"
	DefaultColor        = "Unknown"
)

// Vehicle is the persisted inventory row. The feed is authoritative for
// every field except Status, SoldDate and the admin-owned financial fields
// (purchase price, sale price, expenses), which live outside this pipeline.
type Vehicle struct {
	VIN           string
	StockNumber   string
	Year          int
	Make          string
	Model         string
	Price         float64
	Mileage       int
	BodyType      string
	FuelType      string
	Transmission  string
	Image         *string
	Images        []string
	Description   *string
	ExteriorColor string
	InteriorColor string
	Features      []string
	Status        string
	SoldDate      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IncomingVehicle is one record of a snapshot feed as posted by the bridge.
type IncomingVehicle struct {
	VIN           string   `json:"vin"`
	StockNumber   string   `json:"stockNumber"`
	Year          int      `json:"year"`
	Make          string   `json:"make"`
	Model         string   `json:"model"`
	Price         float64  `json:"price"`
	Mileage       int      `json:"mileage"`
	BodyType      string   `json:"bodyType"`
	FuelType      string   `json:"fuelType"`
	Transmission  string   `json:"transmission"`
	Image         *string  `json:"image"`
	Images        []string `json:"images"`
	Description   *string  `json:"description"`
	ExteriorColor string   `json:"exteriorColor"`
	InteriorColor string   `json:"interiorColor"`
	Features      []string `json:"features"`
}

// Normalize maps a feed record to the persisted row shape, filling
// documented defaults for absent optional fields. Collections are never nil.
func (in IncomingVehicle) Normalize() Vehicle {
	v := Vehicle{
		VIN:           in.VIN,
		StockNumber:   in.StockNumber,
		Year:          in.Year,
		Make:          in.Make,
		Model:         in.Model,
		Price:         in.Price,
		Mileage:       in.Mileage,
		BodyType:      in.BodyType,
		FuelType:      in.FuelType,
		Transmission:  in.Transmission,
		Image:         in.Image,
		Images:        in.Images,
		Description:   in.Description,
		ExteriorColor: in.ExteriorColor,
		InteriorColor: in.InteriorColor,
		Features:      in.Features,
	}

	if v.BodyType == "" {
		v.BodyType = DefaultBodyType
	}
	if v.FuelType == "" {
		v.FuelType = DefaultFuelType
	}
	if v.Transmission == "" {
		v.Transmission = DefaultTransmission
	}
	if v.ExteriorColor == "" {
		v.ExteriorColor = DefaultColor
	}
	if v.InteriorColor == "" {
		v.InteriorColor = DefaultColor
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	if v.Features == nil {
		v.Features = []string{}
	}

	return v
}
