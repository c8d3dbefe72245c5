package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/sentinel"
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const evidenceColumns = `id, case_id, file_name, content_type, storage_key, status, checksum,
	size_bytes, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, ev *models.Evidence) error {
	query := `
		INSERT INTO evidence (` + evidenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		ev.ID, ev.CaseID, ev.FileName, ev.ContentType, ev.StorageKey, string(ev.Status),
		ev.Checksum, ev.Size, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert evidence %s: %w", ev.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, evidenceID string) (*models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1`
	ev, err := scanEvidence(s.execer(ctx).QueryRowContext(ctx, query, evidenceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find evidence by id: %w", err)
	}
	return ev, nil
}

// FindByIDs returns the evidence rows that exist, in the order requested.
func (s *PostgresStore) FindByIDs(ctx context.Context, evidenceIDs []string) ([]*models.Evidence, error) {
	if len(evidenceIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = ANY($1)`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(evidenceIDs))
	if err != nil {
		return nil, fmt.Errorf("find evidence by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Evidence, len(evidenceIDs))
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		byID[ev.ID] = ev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}

	out := make([]*models.Evidence, 0, len(byID))
	for _, id := range evidenceIDs {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, ev *models.Evidence) error {
	query := `
		UPDATE evidence
		SET status = $2, checksum = $3, size_bytes = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, ev.ID, string(ev.Status), ev.Checksum, ev.Size, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (*models.Evidence, error) {
	var (
		ev     models.Evidence
		status string
	)
	if err := row.Scan(&ev.ID, &ev.CaseID, &ev.FileName, &ev.ContentType, &ev.StorageKey, &status,
		&ev.Checksum, &ev.Size, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.Status = models.EvidenceStatus(status)
	return &ev, nil
}
