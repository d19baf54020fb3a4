package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inventory_sync/internal/domain"
)

type VehicleStore struct {
	db *sqlx.DB
}

func NewVehicleStore(db *sqlx.DB) *VehicleStore {
	return &VehicleStore{db: db}
}

// The upsert binds exactly the columns the feed is authoritative for.
// status, sold_date and the admin-owned financial columns are deliberately
// absent from the conflict update: presence in the feed never resets a
// manually set status (a relisted Sold/Hidden vehicle keeps its status).
const feedColumnCount = 16

// UpsertBatch writes all rows in one statement keyed by vin. On conflict the
// feed-controlled columns are overwritten and updated_at refreshed.
func (s *VehicleStore) UpsertBatch(ctx context.Context, vehicles []domain.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO vehicles (
			vin, stock_number, year, make, model, price, mileage,
			body_type, fuel_type, transmission, image_url, images,
			description, exterior_color, interior_color, features, status
		) VALUES `)

	args := make([]interface{}, 0, len(vehicles)*feedColumnCount)
	for i, v := range vehicles {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < feedColumnCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*feedColumnCount + j + 1))
		}
		sb.WriteString(", 'Available')")

		args = append(args,
			v.VIN,
			v.StockNumber,
			v.Year,
			v.Make,
			v.Model,
			v.Price,
			v.Mileage,
			v.BodyType,
			v.FuelType,
			v.Transmission,
			v.Image,
			pq.Array(v.Images),
			v.Description,
			v.ExteriorColor,
			v.InteriorColor,
			pq.Array(v.Features),
		)
	}

	sb.WriteString(`
		ON CONFLICT (vin) DO UPDATE SET
			stock_number = EXCLUDED.stock_number,
			year = EXCLUDED.year,
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			price = EXCLUDED.price,
			mileage = EXCLUDED.mileage,
			body_type = EXCLUDED.body_type,
			fuel_type = EXCLUDED.fuel_type,
			transmission = EXCLUDED.transmission,
			image_url = EXCLUDED.image_url,
			images = EXCLUDED.images,
			description = EXCLUDED.description,
			exterior_color = EXCLUDED.exterior_color,
			interior_color = EXCLUDED.interior_color,
			features = EXCLUDED.features,
			updated_at = now()`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

// ListAvailableVINs returns the VINs of every vehicle currently Available.
func (s *VehicleStore) ListAvailableVINs(ctx context.Context) ([]string, error) {
	query := `SELECT vin FROM vehicles WHERE status = 'Available'`

	var vins []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &vins, query)
	return vins, err
}

// MarkSold transitions the given VINs to Sold in one batch, setting
// sold_date. Only Available rows are touched. Returns the number of rows
// actually transitioned.
func (s *VehicleStore) MarkSold(ctx context.Context, vins []string, soldAt time.Time) (int, error) {
	if len(vins) == 0 {
		return 0, nil
	}

	query := `
		UPDATE vehicles
		SET status = 'Sold', sold_date = $2, updated_at = now()
		WHERE vin = ANY($1) AND status = 'Available'`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, pq.Array(vins), soldAt)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// GetByVIN reads one vehicle row; used by tests and the admin read path.
func (s *VehicleStore) GetByVIN(ctx context.Context, vin string) (*domain.Vehicle, error) {
	query := `
		SELECT vin, stock_number, year, make, model, price, mileage,
			body_type, fuel_type, transmission, image_url, images,
			description, exterior_color, interior_color, features,
			status, sold_date, created_at, updated_at
		FROM vehicles
		WHERE vin = $1`

	var row struct {
		VIN           string         `db:"vin"`
		StockNumber   string         `db:"stock_number"`
		Year          int            `db:"year"`
		Make          string         `db:"make"`
		Model         string         `db:"model"`
		Price         float64        `db:"price"`
		Mileage       int            `db:"mileage"`
		BodyType      string         `db:"body_type"`
		FuelType      string         `db:"fuel_type"`
		Transmission  string         `db:"transmission"`
		Image         *string        `db:"image_url"`
		Images        pq.StringArray `db:"images"`
		Description   *string        `db:"description"`
		ExteriorColor string         `db:"exterior_color"`
		InteriorColor string         `db:"interior_color"`
		Features      pq.StringArray `db:"features"`
		Status        string         `db:"status"`
		SoldDate      *time.Time     `db:"sold_date"`
		CreatedAt     time.Time      `db:"created_at"`
		UpdatedAt     time.Time      `db:"updated_at"`
	}

	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, vin); err != nil {
		return nil, err
	}

	return &domain.Vehicle{
		VIN:           row.VIN,
		StockNumber:   row.StockNumber,
		Year:          row.Year,
		Make:          row.Make,
		Model:         row.Model,
		Price:         row.Price,
		Mileage:       row.Mileage,
		BodyType:      row.BodyType,
		FuelType:      row.FuelType,
		Transmission:  row.Transmission,
		Image:         row.Image,
		Images:        row.Images,
		Description:   row.Description,
		ExteriorColor: row.ExteriorColor,
		InteriorColor: row.InteriorColor,
		Features:      row.Features,
		Status:        row.Status,
		SoldDate:      row.SoldDate,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}
