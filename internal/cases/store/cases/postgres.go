package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/sentinel"
	txcontext "kycgate/pkg/platform/tx"
)

// PostgresStore persists cases. Writes join a transaction carried on ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const caseColumns = `id, customer_id, category_id, policy_version, status, form_payload,
	evidence_ids, final_case_id, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Case) error {
	payload, err := json.Marshal(nonNilPayload(c.FormPayload))
	if err != nil {
		return fmt.Errorf("marshal form payload: %w", err)
	}
	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID, c.CustomerID, c.CategoryID, c.PolicyVersion, string(c.Status), payload,
		pq.Array(nonNilIDs(c.EvidenceIDs)), nullString(c.FinalCaseID), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert case %s: %w", c.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, caseID string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(s.execer(ctx).QueryRowContext(ctx, query, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find case by id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Save(ctx context.Context, c *models.Case) error {
	payload, err := json.Marshal(nonNilPayload(c.FormPayload))
	if err != nil {
		return fmt.Errorf("marshal form payload: %w", err)
	}
	query := `
		UPDATE cases
		SET status = $2, form_payload = $3, evidence_ids = $4,
			final_case_id = COALESCE(final_case_id, $5), policy_version = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID, string(c.Status), payload, pq.Array(nonNilIDs(c.EvidenceIDs)),
		nullString(c.FinalCaseID), c.PolicyVersion, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE customer_id = $1 ORDER BY created_at`
	rows, err := s.execer(ctx).QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("list cases by customer: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c           models.Case
		status      string
		payload     []byte
		evidenceIDs pq.StringArray
		finalCaseID sql.NullString
	)
	if err := row.Scan(&c.ID, &c.CustomerID, &c.CategoryID, &c.PolicyVersion, &status, &payload,
		&evidenceIDs, &finalCaseID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	c.Status = parsed
	c.FormPayload = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.FormPayload); err != nil {
			return nil, fmt.Errorf("unmarshal form payload: %w", err)
		}
	}
	c.EvidenceIDs = []string(evidenceIDs)
	c.FinalCaseID = finalCaseID.String
	return &c, nil
}

func nonNilPayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
