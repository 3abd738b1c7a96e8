// Package registry provides read-only, tenant-scoped entity registries
// and fuzzy resolution of raw mentions against them.
package registry

import (
	"context"
	"fmt"

	"github.com/servicelens-inc/servicelens-engine/pkg/database"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// Repository is the read-only lookup surface over the tenant entity
// registries. Implementations must never return rows from another
// district; cross-tenant leakage is a correctness violation.
type Repository interface {
	List(ctx context.Context, districtKey string, kind models.EntityKind) ([]models.EntityRecord, error)
}

// kindTables maps each entity kind to its registry table. User input
// never reaches these identifiers.
var kindTables = map[models.EntityKind]string{
	models.KindStudent:   "students",
	models.KindVendor:    "vendors",
	models.KindClinician: "clinicians",
}

type pgRepository struct {
	db *database.DB
}

// NewRepository creates a Postgres-backed registry repository.
func NewRepository(db *database.DB) Repository {
	return &pgRepository{db: db}
}

var _ Repository = (*pgRepository)(nil)

func (r *pgRepository) List(ctx context.Context, districtKey string, kind models.EntityKind) ([]models.EntityRecord, error) {
	table, ok := kindTables[kind]
	if !ok {
		return nil, fmt.Errorf("no registry for entity kind %q", kind)
	}

	scope, err := r.db.WithDistrict(ctx, districtKey)
	if err != nil {
		return nil, fmt.Errorf("acquire district scope: %w", err)
	}
	defer scope.Close()

	query := fmt.Sprintf(
		"SELECT id, canonical_name FROM %s WHERE district_key = $1 ORDER BY canonical_name", table)
	rows, err := scope.Conn.Query(ctx, query, districtKey)
	if err != nil {
		return nil, fmt.Errorf("list %s registry: %w", kind, err)
	}
	defer rows.Close()

	var records []models.EntityRecord
	for rows.Next() {
		rec := models.EntityRecord{DistrictKey: districtKey, Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.CanonicalName); err != nil {
			return nil, fmt.Errorf("scan %s registry row: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s registry: %w", kind, err)
	}

	return records, nil
}
