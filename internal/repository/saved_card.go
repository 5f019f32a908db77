package repository

import (
	"context"
	"fmt"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// SavedCardRepository は顧客の保存済みカードを参照するインターフェースです
type SavedCardRepository interface {
	ListByCustomer(ctx context.Context, email string) ([]model.SavedCard, error)
}

type SavedCardRepositoryImpl struct {
	db *DB
}

func NewSavedCardRepository(db *DB) *SavedCardRepositoryImpl {
	return &SavedCardRepositoryImpl{db: db}
}

// ListByCustomer はメールアドレスに紐づく保存済みカードを取得します
func (r *SavedCardRepositoryImpl) ListByCustomer(ctx context.Context, email string) (_ []model.SavedCard, err error) {
	ctx, span := tracing.Start(ctx, "SavedCardRepository.ListByCustomer")
	defer func() { span.End(err) }()

	query := `
		SELECT
			id,
			customer_email,
			brand,
			last4,
			exp_month,
			exp_year
		FROM saved_cards
		WHERE LOWER(customer_email) = LOWER($1)
		ORDER BY id`

	cards := []model.SavedCard{}
	if err := r.db.SelectContext(ctx, &cards, query, email); err != nil {
		return nil, fmt.Errorf("failed to list saved cards: %w", err)
	}

	return cards, nil
}
