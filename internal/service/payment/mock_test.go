package payment

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/mozila9822/website-VOY-sub000/internal/gateway"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/repository/repotest"
)

// MockPaymentSettingRepository はテスト用のモックリポジトリです
type MockPaymentSettingRepository struct {
	t        *testing.T
	txs      *repotest.TxSource
	settings map[model.Provider]*model.PaymentSettings
	getErr   error
	saved    *model.PaymentSettings
}

func newMockPaymentSettingRepository(t *testing.T, settings ...*model.PaymentSettings) *MockPaymentSettingRepository {
	m := &MockPaymentSettingRepository{
		t:        t,
		txs:      repotest.NewTxSource(t),
		settings: map[model.Provider]*model.PaymentSettings{},
	}
	for _, s := range settings {
		m.settings[s.Provider] = s
	}
	return m
}

func (m *MockPaymentSettingRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return m.txs.Begin(m.t), nil
}

func (m *MockPaymentSettingRepository) Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.settings[provider]
	if !ok {
		return nil, model.ErrProviderNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MockPaymentSettingRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, provider model.Provider) (*model.PaymentSettings, error) {
	return m.Get(ctx, provider)
}

func (m *MockPaymentSettingRepository) Save(ctx context.Context, tx *sqlx.Tx, settings *model.PaymentSettings) error {
	m.saved = settings
	m.settings[settings.Provider] = settings
	return nil
}

// MockGateway はテスト用のゲートウェイです
type MockGateway struct {
	CreateIntentFunc  func(ctx context.Context, params gateway.IntentParams) (*model.PaymentIntent, error)
	GetIntentFunc     func(ctx context.Context, referenceID string) (*model.IntentStatus, error)
	ConfirmIntentFunc func(ctx context.Context, referenceID, paymentMethod string) (*model.IntentStatus, error)
}

func (m *MockGateway) CreateIntent(ctx context.Context, params gateway.IntentParams) (*model.PaymentIntent, error) {
	return m.CreateIntentFunc(ctx, params)
}

func (m *MockGateway) GetIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error) {
	return m.GetIntentFunc(ctx, referenceID)
}

func (m *MockGateway) ConfirmIntent(ctx context.Context, referenceID, paymentMethod string) (*model.IntentStatus, error) {
	return m.ConfirmIntentFunc(ctx, referenceID, paymentMethod)
}

func stripeSettings(enabled bool, secret string) *model.PaymentSettings {
	return &model.PaymentSettings{
		Provider:  model.ProviderStripe,
		Enabled:   enabled,
		SecretKey: secret,
		Config:    &model.StripeConfig{},
	}
}
