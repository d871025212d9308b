package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type reconciliationRepository struct {
	db *sql.DB
}

// NewReconciliationRepository создаёт PostgreSQL-хранилище кейсов ручной сверки.
func NewReconciliationRepository(store *Store) domain.ReconciliationRepository {
	return &reconciliationRepository{db: store.DB()}
}

func (r *reconciliationRepository) Create(c domain.ReconciliationCase) (domain.ReconciliationCase, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Resolved = false
	c.ResolutionNote = ""
	c.ResolvedAt = time.Time{}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_cases (
			id, saga_id, order_id, return_id, refund_id, stage, reason, amount, resolved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
	`,
		c.ID, c.SagaID, c.OrderID, c.ReturnID, c.RefundID, string(c.Stage), c.Reason,
		decimal.NewFromFloat(c.Amount).Round(2), c.CreatedAt,
	); err != nil {
		return domain.ReconciliationCase{}, fmt.Errorf("create reconciliation case: %w", err)
	}
	return c, nil
}

func (r *reconciliationRepository) Get(id string) (domain.ReconciliationCase, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	c, err := scanReconciliationCase(r.db.QueryRowContext(ctx, selectReconciliationCase+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReconciliationCase{}, domain.ErrReconciliationNotFound
		}
		return domain.ReconciliationCase{}, fmt.Errorf("get reconciliation case: %w", err)
	}
	return c, nil
}

// ListOpen возвращает незакрытые кейсы, старые первыми. limit<=0, без ограничения.
func (r *reconciliationRepository) ListOpen(limit int) ([]domain.ReconciliationCase, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := selectReconciliationCase + ` WHERE resolved = FALSE ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open reconciliation cases: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ReconciliationCase, 0)
	for rows.Next() {
		c, err := scanReconciliationCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconciliation case: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reconciliation cases: %w", err)
	}
	return result, nil
}

// Resolve закрывает кейс; повторное закрытие не меняет исходную заметку.
func (r *reconciliationRepository) Resolve(id, note string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reconciliation_cases
		SET resolved = TRUE,
		    resolution_note = $2,
		    resolved_at = $3
		WHERE id = $1 AND resolved = FALSE
	`, id, strings.TrimSpace(note), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve reconciliation case: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reconciliation rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// кейс уже закрыт или не существует
	_, err = r.Get(id)
	return err
}

const selectReconciliationCase = `
	SELECT id, saga_id, order_id, return_id, refund_id, stage, reason, amount,
	       resolved, resolution_note, created_at, resolved_at
	FROM reconciliation_cases`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReconciliationCase(row rowScanner) (domain.ReconciliationCase, error) {
	var (
		c          domain.ReconciliationCase
		stage      string
		amount     decimal.Decimal
		resolvedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.SagaID, &c.OrderID, &c.ReturnID, &c.RefundID, &stage, &c.Reason, &amount,
		&c.Resolved, &c.ResolutionNote, &c.CreatedAt, &resolvedAt,
	); err != nil {
		return domain.ReconciliationCase{}, err
	}

	c.Stage = domain.SagaStage(stage)
	c.Amount = amount.InexactFloat64()
	c.CreatedAt = c.CreatedAt.UTC()
	if resolvedAt.Valid {
		c.ResolvedAt = resolvedAt.Time.UTC()
	}
	return c, nil
}

var _ domain.ReconciliationRepository = (*reconciliationRepository)(nil)
