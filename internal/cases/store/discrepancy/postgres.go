package discrepancy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kycgate/internal/cases/models"
	txcontext "kycgate/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Discrepancy) error {
	var resolution []byte
	if d.ResolutionRequired != nil {
		var err error
		resolution, err = json.Marshal(d.ResolutionRequired)
		if err != nil {
			return fmt.Errorf("marshal resolution: %w", err)
		}
	}
	query := `
		INSERT INTO discrepancies (
			id, case_id, field, message, expected_value, received_value,
			severity, status, resolution_required, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		d.ID, d.CaseID, d.Field, d.Message, d.ExpectedValue, d.ReceivedValue,
		string(d.Severity), string(d.Status), resolution, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert discrepancy: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOpen(ctx context.Context, caseID string) ([]*models.Discrepancy, error) {
	return s.list(ctx, `WHERE case_id = $1 AND status = 'OPEN'`, caseID)
}

func (s *PostgresStore) ListAll(ctx context.Context, caseID string) ([]*models.Discrepancy, error) {
	return s.list(ctx, `WHERE case_id = $1`, caseID)
}

func (s *PostgresStore) list(ctx context.Context, where, caseID string) ([]*models.Discrepancy, error) {
	query := `
		SELECT id, case_id, field, message, expected_value, received_value,
			severity, status, resolution_required, created_at
		FROM discrepancies ` + where + `
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	defer rows.Close()

	var out []*models.Discrepancy
	for rows.Next() {
		var (
			d                  models.Discrepancy
			expected, received sql.NullString
			severity, status   string
			resolution         []byte
		)
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Field, &d.Message, &expected, &received,
			&severity, &status, &resolution, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		if expected.Valid {
			d.ExpectedValue = &expected.String
		}
		if received.Valid {
			d.ReceivedValue = &received.String
		}
		d.Severity = models.Severity(severity)
		d.Status = models.DiscrepancyStatus(status)
		if len(resolution) > 0 {
			if err := json.Unmarshal(resolution, &d.ResolutionRequired); err != nil {
				return nil, fmt.Errorf("unmarshal resolution: %w", err)
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ClearOpen resolves every OPEN discrepancy of the case.
func (s *PostgresStore) ClearOpen(ctx context.Context, caseID string, now time.Time) (int, error) {
	query := `
		UPDATE discrepancies
		SET status = 'RESOLVED', resolved_at = $2
		WHERE case_id = $1 AND status = 'OPEN'
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, caseID, now)
	if err != nil {
		return 0, fmt.Errorf("clear open discrepancies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear open discrepancies rows affected: %w", err)
	}
	return int(n), nil
}
