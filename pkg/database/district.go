package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DistrictScope wraps a connection with district context for RLS policy
// evaluation and ensures cleanup.
type DistrictScope struct {
	Conn *pgxpool.Conn
}

// Close resets the district context and releases the connection to the
// pool. This MUST be called so the context cannot leak to the next request.
func (s *DistrictScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_district_key")
	s.Conn.Release()
}

// WithDistrict acquires a connection and sets the district context. Every
// statement run on the returned connection is constrained to the district
// by row-level security, in addition to the explicit district_key binds
// the pipeline already requires.
// The returned DistrictScope MUST be closed with defer scope.Close().
func (db *DB) WithDistrict(ctx context.Context, districtKey string) (*DistrictScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_district_key', $1, false)", districtKey)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &DistrictScope{Conn: conn}, nil
}
