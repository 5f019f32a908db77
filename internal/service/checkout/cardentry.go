package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// CardResultKind はカード入力の結果の種類です
type CardResultKind int

const (
	CardSucceeded CardResultKind = iota + 1
	CardFailed
	CardPending
)

func (k CardResultKind) String() string {
	switch k {
	case CardSucceeded:
		return "success"
	case CardFailed:
		return "failure"
	case CardPending:
		return "pending"
	}
	return "unknown"
}

// CardResult はカード入力サブフローの結果です。Kind に応じて次のいずれかのみを持ちます
//   - CardSucceeded: ReferenceID
//   - CardFailed: Message と Err
//   - CardPending: なし
type CardResult struct {
	Kind        CardResultKind
	ReferenceID string
	Message     string
	Err         error
}

func Success(referenceID string) CardResult {
	return CardResult{Kind: CardSucceeded, ReferenceID: referenceID}
}

func Failure(message string, cause error) CardResult {
	return CardResult{Kind: CardFailed, Message: message, Err: cause}
}

func Pending() CardResult {
	return CardResult{Kind: CardPending}
}

// CardEntry はカード情報を受け付けて決済インテントを確定するサブフローです
// 予約台帳には書き込みません。失敗後の再試行は同じインテントを使います
type CardEntry interface {
	Submit(ctx context.Context, intent *model.PaymentIntent) CardResult
}

// IntentCharger はトークン化された支払い手段でインテントを確定します
type IntentCharger interface {
	ChargeIntent(ctx context.Context, referenceID, paymentMethod string) (*model.IntentStatus, error)
}

// GatewayCardEntry はサーバー側でゲートウェイにインテントの確定を依頼するカード入力です
// PaymentMethod はクライアントでトークン化された支払い手段のIDです
type GatewayCardEntry struct {
	charger       IntentCharger
	paymentMethod string
}

func NewGatewayCardEntry(charger IntentCharger, paymentMethod string) *GatewayCardEntry {
	return &GatewayCardEntry{charger: charger, paymentMethod: paymentMethod}
}

// Submit はゲートウェイの応答をカード入力の結果に変換します
func (e *GatewayCardEntry) Submit(ctx context.Context, intent *model.PaymentIntent) CardResult {
	if intent == nil || intent.ReferenceID == "" {
		return Failure("Payment is not ready yet. Please select the payment method again.",
			fmt.Errorf("%w: payment intent is missing", model.ErrValidationFailed))
	}
	if strings.TrimSpace(e.paymentMethod) == "" {
		return Failure("Please enter your card details.",
			fmt.Errorf("%w: payment method token is required", model.ErrValidationFailed))
	}

	status, err := e.charger.ChargeIntent(ctx, intent.ReferenceID, e.paymentMethod)
	if err != nil {
		if errors.Is(err, model.ErrCardDeclined) {
			return Failure("Your card was declined. Please try another card.", err)
		}
		return Failure("We could not process your card. Please check the details and try again.",
			fmt.Errorf("%w: %w", model.ErrValidationFailed, err))
	}

	switch status.Status {
	case model.IntentStatusSucceeded:
		return Success(status.ID)
	case "requires_action", "requires_confirmation", "processing":
		return Pending()
	case "requires_payment_method":
		return Failure("Your card was declined. Please try another card.",
			fmt.Errorf("%w: status %s", model.ErrCardDeclined, status.Status))
	}
	return Failure("We could not process your card. Please try again.",
		fmt.Errorf("%w: unexpected payment status %s", model.ErrValidationFailed, status.Status))
}
