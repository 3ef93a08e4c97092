package repositories

import (
	"context"

	"sharedtrips/internal/domain/models"
)

// DefaultCities seeds an empty cities table.
var DefaultCities = []models.City{
	{Name: "Sofia", Lat: 42.6977, Lng: 23.3219},
	{Name: "Plovdiv", Lat: 42.1354, Lng: 24.7453},
	{Name: "Varna", Lat: 43.2141, Lng: 27.9147},
	{Name: "Burgas", Lat: 42.5048, Lng: 27.4626},
}

type CityRepository struct {
	DB DBTX
}

func (r CityRepository) List(ctx context.Context) ([]models.City, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name, lat, lng FROM cities ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.City{}
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.Name, &c.Lat, &c.Lng); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r CityRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM cities`).Scan(&n)
	return n, err
}

// Seed inserts the cities unless the table already has rows. Existing names
// are left untouched.
func (r CityRepository) Seed(ctx context.Context, cities []models.City) (int, error) {
	n, err := r.Count(ctx)
	if err != nil || n > 0 {
		return 0, err
	}
	inserted := 0
	for _, c := range cities {
		if _, err := r.DB.ExecContext(ctx, `INSERT IGNORE INTO cities (name, lat, lng) VALUES (?, ?, ?)`, c.Name, c.Lat, c.Lng); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
