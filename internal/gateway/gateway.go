package gateway

import (
	"context"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// IntentParams は決済インテント作成時の入力です。金額は最小通貨単位です
type IntentParams struct {
	Amount              int64
	Currency            string
	Metadata            model.IntentMetadata
	StatementDescriptor string
}

// Gateway は外部決済ゲートウェイへのアダプタです
type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*model.PaymentIntent, error)
	GetIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error)
	// ConfirmIntent はトークン化された支払い手段でインテントを確定します
	ConfirmIntent(ctx context.Context, referenceID, paymentMethod string) (*model.IntentStatus, error)
}

// Factory はシークレットキーからゲートウェイクライアントを作成します
// 呼び出しごとに新しいクライアントを作成するため、キーの更新は次の呼び出しから反映されます
type Factory func(secretKey string) Gateway
