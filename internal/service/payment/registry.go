package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/repository"
)

// RegistryService は決済プロバイダ設定の参照と更新を担当します
// 更新は後勝ちで、バージョンによる競合検出は行いません
type RegistryService struct {
	repo   repository.PaymentSettingRepository
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewRegistryService は新しいRegistryServiceを作成します
func NewRegistryService(repo repository.PaymentSettingRepository, logger logrus.FieldLogger) *RegistryService {
	return &RegistryService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get はプロバイダの設定を返します
func (s *RegistryService) Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error) {
	if _, err := model.ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, provider)
}

// Update は設定をフィールド単位で部分更新します
// 追加設定は現在の値に対してフィールド単位でマージされ、検証に通った場合のみ保存されます
func (s *RegistryService) Update(ctx context.Context, provider model.Provider, patch model.PaymentSettingsPatch) (_ *model.PaymentSettings, err error) {
	ctx, span := tracing.Start(ctx, "RegistryService.Update")
	defer func() { span.End(err) }()

	if _, err := model.ParseProvider(string(provider)); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	current, err := s.repo.GetForUpdate(ctx, tx, provider)
	if err != nil {
		return nil, repository.Rollback(tx, err)
	}

	updated, err := merge(current, patch)
	if err != nil {
		return nil, repository.Rollback(tx, err)
	}
	updated.UpdatedAt = s.now()

	if err := updated.Validate(); err != nil {
		return nil, repository.Rollback(tx, err)
	}

	if err := s.repo.Save(ctx, tx, updated); err != nil {
		return nil, repository.Rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment settings: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"provider": provider,
		"enabled":  updated.Enabled,
	}).Info("Payment settings updated")

	return updated, nil
}

func merge(current *model.PaymentSettings, patch model.PaymentSettingsPatch) (*model.PaymentSettings, error) {
	next := *current
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.PublishableKey != nil {
		next.PublishableKey = *patch.PublishableKey
	}
	if patch.SecretKey != nil {
		next.SecretKey = *patch.SecretKey
	}

	cfg, err := model.DecodeProviderConfig(current.Provider, current.Config, patch.AdditionalConfig)
	if err != nil {
		return nil, err
	}
	next.Config = cfg
	return &next, nil
}
