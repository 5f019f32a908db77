package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/gateway"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

const defaultCurrency = "usd"

// SettingsReader はプロバイダ設定を読み取るインターフェースです
type SettingsReader interface {
	Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error)
}

// IntentRequest は決済インテント作成の入力です
type IntentRequest struct {
	Amount   model.AmountInput    `json:"amount"`
	Currency string               `json:"currency"`
	Metadata model.IntentMetadata `json:"metadata"`
}

// BrokerService は決済インテントの作成と確認を仲介します
// 呼び出しごとに設定を読み直してクライアントを作成するため、プロセス内にクライアントを保持しません
type BrokerService struct {
	settings   SettingsReader
	newGateway gateway.Factory
	logger     logrus.FieldLogger
}

// NewBrokerService は新しいBrokerServiceを作成します
func NewBrokerService(settings SettingsReader, factory gateway.Factory, logger logrus.FieldLogger) *BrokerService {
	return &BrokerService{
		settings:   settings,
		newGateway: factory,
		logger:     logger,
	}
}

// connect は現在のゲートウェイ設定でクライアントを作成します
func (b *BrokerService) connect(ctx context.Context) (gateway.Gateway, *model.StripeConfig, error) {
	settings, err := b.settings.Get(ctx, model.ProviderStripe)
	if err != nil {
		if errors.Is(err, model.ErrProviderNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", model.ErrGatewayUnavailable, err)
		}
		return nil, nil, fmt.Errorf("failed to read gateway settings: %w", err)
	}
	if !settings.Enabled {
		return nil, nil, fmt.Errorf("%w: gateway is disabled", model.ErrGatewayUnavailable)
	}
	if settings.SecretKey == "" {
		return nil, nil, fmt.Errorf("%w: gateway secret key is not configured", model.ErrGatewayUnavailable)
	}

	cfg, _ := settings.Config.(*model.StripeConfig)
	if cfg == nil {
		cfg = &model.StripeConfig{}
	}
	return b.newGateway(settings.SecretKey), cfg, nil
}

// CreateIntent は金額を最小通貨単位に正規化して決済インテントを作成します
func (b *BrokerService) CreateIntent(ctx context.Context, req IntentRequest) (_ *model.PaymentIntent, err error) {
	ctx, span := tracing.Start(ctx, "BrokerService.CreateIntent")
	defer func() { span.End(err) }()

	amount, err := req.Amount.Minor()
	if err != nil {
		return nil, err
	}

	gw, cfg, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = cfg.Currency
	}
	if currency == "" {
		currency = defaultCurrency
	}

	intent, err := gw.CreateIntent(ctx, gateway.IntentParams{
		Amount:              amount,
		Currency:            currency,
		Metadata:            req.Metadata,
		StatementDescriptor: cfg.StatementDescriptor,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIntentCreationFailed, err)
	}

	b.logger.WithFields(logrus.Fields{
		"payment_intent_id": intent.ReferenceID,
		"amount":            amount,
		"currency":          currency,
	}).Info("Payment intent created")

	return intent, nil
}

// ConfirmIntent はゲートウェイに問い合わせて決済が完了しているかを確認します
// succeeded 以外のステータスは PaymentNotCompletedError になります
func (b *BrokerService) ConfirmIntent(ctx context.Context, referenceID string) (_ *model.IntentStatus, err error) {
	ctx, span := tracing.Start(ctx, "BrokerService.ConfirmIntent")
	defer func() { span.End(err) }()

	if strings.TrimSpace(referenceID) == "" {
		return nil, fmt.Errorf("%w: paymentIntentId is required", model.ErrValidationFailed)
	}

	gw, _, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	status, err := gw.GetIntent(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfirmationFailed, err)
	}
	if !status.Succeeded() {
		return status, &model.PaymentNotCompletedError{Status: status.Status}
	}

	return status, nil
}

// ChargeIntent はトークン化されたカード情報でインテントを確定します
func (b *BrokerService) ChargeIntent(ctx context.Context, referenceID, paymentMethod string) (_ *model.IntentStatus, err error) {
	ctx, span := tracing.Start(ctx, "BrokerService.ChargeIntent")
	defer func() { span.End(err) }()

	gw, _, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return gw.ConfirmIntent(ctx, referenceID, paymentMethod)
}
