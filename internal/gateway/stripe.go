package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// StripeGateway はStripeのPaymentIntent APIを使ったゲートウェイです
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway はシークレットキーごとにStripeクライアントを作成します
// backends が nil の場合はStripeの既定のエンドポイントを使用します
func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

// StripeFactory は既定のエンドポイントを使うFactoryを返します
func StripeFactory() Factory {
	return func(secretKey string) Gateway {
		return NewStripeGateway(secretKey, nil)
	}
}

// CreateIntent は決済インテントを作成します
func (g *StripeGateway) CreateIntent(ctx context.Context, p IntentParams) (_ *model.PaymentIntent, err error) {
	ctx, span := tracing.Start(ctx, "StripeGateway.CreateIntent")
	defer func() { span.End(err) }()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(p.StatementDescriptor)
	}
	for k, v := range p.Metadata.Map() {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	span.AddMetadata("payment_intent_id", pi.ID)
	return &model.PaymentIntent{
		ReferenceID:  pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// GetIntent は決済インテントの現在の状態を取得します
func (g *StripeGateway) GetIntent(ctx context.Context, referenceID string) (_ *model.IntentStatus, err error) {
	ctx, span := tracing.Start(ctx, "StripeGateway.GetIntent")
	defer func() { span.End(err) }()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(referenceID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toIntentStatus(pi), nil
}

// ConfirmIntent はカード情報のトークンで決済インテントを確定します
func (g *StripeGateway) ConfirmIntent(ctx context.Context, referenceID, paymentMethod string) (_ *model.IntentStatus, err error) {
	ctx, span := tracing.Start(ctx, "StripeGateway.ConfirmIntent")
	defer func() { span.End(err) }()

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethod),
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Confirm(referenceID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return toIntentStatus(pi), nil
}

func toIntentStatus(pi *stripe.PaymentIntent) *model.IntentStatus {
	return &model.IntentStatus{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
	}
}

// mapStripeError はカード起因のエラーを ErrCardDeclined に変換します
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", model.ErrCardDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
