package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/database"
	"github.com/servicelens-inc/servicelens-engine/pkg/logging"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
	"github.com/servicelens-inc/servicelens-engine/pkg/retry"
)

// ResultSet is the materialized outcome of one executed query.
type ResultSet struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// QueryExecutor runs a validated IR against the relational store.
type QueryExecutor interface {
	Execute(ctx context.Context, ir *models.AnalyticsIR) (*ResultSet, error)
}

// Executor is the only component that runs SQL. It refuses anything the
// validator has not stamped and always executes inside a district scope.
type Executor struct {
	db     *database.DB
	logger *zap.Logger
}

func NewExecutor(db *database.DB, logger *zap.Logger) *Executor {
	return &Executor{db: db, logger: logger.Named("executor")}
}

// Execute runs a validated IR and materializes the result set. Transient
// store failures are retried with backoff; the query itself is read-only
// so replays are safe.
func (e *Executor) Execute(ctx context.Context, ir *models.AnalyticsIR) (*ResultSet, error) {
	if !ir.Valid {
		return nil, apperrors.New(apperrors.KindValidationRejected, "refusing to execute unvalidated SQL")
	}
	districtKey, ok := ir.DistrictBinding()
	if !ok {
		return nil, apperrors.New(apperrors.KindValidationRejected, "refusing to execute SQL without a district binding")
	}

	var result *ResultSet
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		rs, err := e.runScoped(ctx, districtKey, ir)
		if err != nil {
			return err
		}
		result = rs
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExecutionError, "query execution failed", err)
	}

	// Bind values carry student and clinician names; only parameter keys
	// and truncated statement text reach the logs.
	e.logger.Debug("executed query",
		zap.String("mode", string(ir.Mode)),
		zap.String("sql", logging.SanitizeQuery(ir.SQL)),
		zap.Strings("bind_params", logging.RedactBindParams(ir.NamedParams)),
		zap.Int("row_count", result.RowCount))

	return result, nil
}

func (e *Executor) runScoped(ctx context.Context, districtKey string, ir *models.AnalyticsIR) (*ResultSet, error) {
	scope, err := e.db.WithDistrict(ctx, districtKey)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	rows, err := scope.Conn.Query(ctx, ir.SQL, ir.Values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &ResultSet{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)

	return result, nil
}
