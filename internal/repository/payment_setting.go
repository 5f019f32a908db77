package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// PaymentSettingRepository は決済プロバイダ設定の永続化を担当するインターフェースです
// プロバイダの行はマイグレーションで作成済みのため、作成と削除は提供しません
type PaymentSettingRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, provider model.Provider) (*model.PaymentSettings, error)
	Save(ctx context.Context, tx *sqlx.Tx, settings *model.PaymentSettings) error
}

type PaymentSettingRepositoryImpl struct {
	db *DB
}

func NewPaymentSettingRepository(db *DB) *PaymentSettingRepositoryImpl {
	return &PaymentSettingRepositoryImpl{db: db}
}

type paymentSettingRow struct {
	Provider         string    `db:"provider"`
	Enabled          bool      `db:"enabled"`
	PublishableKey   string    `db:"publishable_key"`
	SecretKey        string    `db:"secret_key"`
	AdditionalConfig []byte    `db:"additional_config"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r paymentSettingRow) toModel() (*model.PaymentSettings, error) {
	provider, err := model.ParseProvider(r.Provider)
	if err != nil {
		return nil, err
	}
	cfg, err := model.DecodeProviderConfig(provider, nil, r.AdditionalConfig)
	if err != nil {
		return nil, fmt.Errorf("stored additional_config for %s is invalid: %w", provider, err)
	}
	return &model.PaymentSettings{
		Provider:       provider,
		Enabled:        r.Enabled,
		PublishableKey: r.PublishableKey,
		SecretKey:      r.SecretKey,
		Config:         cfg,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

const paymentSettingColumns = `provider, enabled, publishable_key, secret_key, additional_config, updated_at`

func (r *PaymentSettingRepositoryImpl) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTx(ctx)
}

// Get はプロバイダの設定を取得します
func (r *PaymentSettingRepositoryImpl) Get(ctx context.Context, provider model.Provider) (_ *model.PaymentSettings, err error) {
	ctx, span := tracing.Start(ctx, "PaymentSettingRepository.Get")
	defer func() { span.End(err) }()

	query := `SELECT ` + paymentSettingColumns + ` FROM payment_settings WHERE provider = $1`

	var row paymentSettingRow
	if err := r.db.GetContext(ctx, &row, query, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrProviderNotFound, provider)
		}
		return nil, fmt.Errorf("failed to get payment settings for %s: %w", provider, err)
	}

	return row.toModel()
}

// GetForUpdate はトランザクション内で設定を行ロック付きで取得します
func (r *PaymentSettingRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, provider model.Provider) (_ *model.PaymentSettings, err error) {
	ctx, span := tracing.Start(ctx, "PaymentSettingRepository.GetForUpdate")
	defer func() { span.End(err) }()

	query := `SELECT ` + paymentSettingColumns + ` FROM payment_settings WHERE provider = $1 FOR UPDATE`

	var row paymentSettingRow
	if err := tx.GetContext(ctx, &row, query, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrProviderNotFound, provider)
		}
		return nil, fmt.Errorf("failed to lock payment settings for %s: %w", provider, err)
	}

	return row.toModel()
}

// Save は設定を上書き保存します
func (r *PaymentSettingRepositoryImpl) Save(ctx context.Context, tx *sqlx.Tx, settings *model.PaymentSettings) (err error) {
	ctx, span := tracing.Start(ctx, "PaymentSettingRepository.Save")
	defer func() { span.End(err) }()

	additionalConfig, err := json.Marshal(settings.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal additional config: %w", err)
	}

	query := `
		UPDATE payment_settings
		SET enabled = $1,
			publishable_key = $2,
			secret_key = $3,
			additional_config = $4,
			updated_at = $5
		WHERE provider = $6`

	result, err := tx.ExecContext(ctx, query,
		settings.Enabled,
		settings.PublishableKey,
		settings.SecretKey,
		additionalConfig,
		settings.UpdatedAt,
		settings.Provider,
	)
	if err != nil {
		return fmt.Errorf("failed to save payment settings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", model.ErrProviderNotFound, settings.Provider)
	}

	return nil
}
