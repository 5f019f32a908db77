package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// ReconciliationRepository は手動照合レコードの永続化を担当するインターフェースです
type ReconciliationRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	Create(ctx context.Context, record *model.ReconciliationRecord) error
	ListUnreported(ctx context.Context) ([]model.ReconciliationRecord, error)
	MarkReported(ctx context.Context, tx *sqlx.Tx, ids []string) error
}

type ReconciliationRepositoryImpl struct {
	db *DB
}

func NewReconciliationRepository(db *DB) *ReconciliationRepositoryImpl {
	return &ReconciliationRepositoryImpl{db: db}
}

func (r *ReconciliationRepositoryImpl) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTx(ctx)
}

// Create は照合レコードを1件作成します
func (r *ReconciliationRepositoryImpl) Create(ctx context.Context, record *model.ReconciliationRecord) (err error) {
	ctx, span := tracing.Start(ctx, "ReconciliationRepository.Create")
	defer func() { span.End(err) }()

	query := `
		INSERT INTO payment_reconciliations (
			id,
			payment_intent_id,
			customer,
			item,
			amount,
			reason,
			detail,
			reported,
			created_at,
			updated_at
		) VALUES (
			:id,
			:payment_intent_id,
			:customer,
			:item,
			:amount,
			:reason,
			:detail,
			:reported,
			:created_at,
			:updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to insert reconciliation record: %w", err)
	}

	return nil
}

// ListUnreported は未報告の照合レコードを古い順に取得します
func (r *ReconciliationRepositoryImpl) ListUnreported(ctx context.Context) (_ []model.ReconciliationRecord, err error) {
	ctx, span := tracing.Start(ctx, "ReconciliationRepository.ListUnreported")
	defer func() { span.End(err) }()

	query := `
		SELECT
			id,
			payment_intent_id,
			customer,
			item,
			amount,
			reason,
			detail,
			reported,
			created_at,
			updated_at
		FROM payment_reconciliations
		WHERE reported = FALSE
		ORDER BY created_at ASC`

	records := []model.ReconciliationRecord{}
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to list unreported reconciliations: %w", err)
	}

	return records, nil
}

// MarkReported は照合レコードを報告済みにします
func (r *ReconciliationRepositoryImpl) MarkReported(ctx context.Context, tx *sqlx.Tx, ids []string) (err error) {
	ctx, span := tracing.Start(ctx, "ReconciliationRepository.MarkReported")
	defer func() { span.End(err) }()

	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE payment_reconciliations
		SET reported = TRUE,
			updated_at = ?
		WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	query = tx.Rebind(query)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark reconciliations reported: %w", err)
	}

	return nil
}
