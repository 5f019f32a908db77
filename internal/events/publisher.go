package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

// EventType は予約イベントの種類です
type EventType string

const (
	EventTypeBookingCreated EventType = "booking_created"
)

// BookingEvent はステートマシンに渡す予約イベントです
// 確認メールなどの後続処理はステートマシン側で行います
type BookingEvent struct {
	Type          EventType           `json:"type"`
	BookingID     string              `json:"booking_id"`
	Customer      string              `json:"customer"`
	Item          string              `json:"item"`
	Date          string              `json:"date"`
	Amount        string              `json:"amount"`
	Status        model.BookingStatus `json:"status"`
	PaymentMethod model.PaymentMethod `json:"payment_method,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// NewBookingCreated は予約作成イベントを作成します
// 決済参照IDはイベントに含めません
func NewBookingCreated(b model.Booking) BookingEvent {
	return BookingEvent{
		Type:          EventTypeBookingCreated,
		BookingID:     b.ID,
		Customer:      b.Customer,
		Item:          b.Item,
		Date:          b.Date,
		Amount:        b.Amount,
		Status:        b.Status,
		PaymentMethod: b.PaymentMethod,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher は予約イベントを発行するインターフェースです
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}

// ExecutionStarter はStep Functionsの実行を開始するクライアントです
type ExecutionStarter interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// SFNPublisher はイベントごとにステートマシンの実行を開始します
type SFNPublisher struct {
	client          ExecutionStarter
	stateMachineArn string
	logger          logrus.FieldLogger
}

// NewSFNPublisher は新しいSFNPublisherを作成します
func NewSFNPublisher(client ExecutionStarter, stateMachineArn string, logger logrus.FieldLogger) *SFNPublisher {
	return &SFNPublisher{
		client:          client,
		stateMachineArn: stateMachineArn,
		logger:          logger,
	}
}

// Publish はイベントをステートマシンの入力として実行を開始します
func (p *SFNPublisher) Publish(ctx context.Context, event BookingEvent) (err error) {
	ctx, span := tracing.Start(ctx, "SFNPublisher.Publish")
	defer func() { span.End(err) }()

	input, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	out, err := p.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(p.stateMachineArn),
		Name:            aws.String(fmt.Sprintf("%s-%s", event.Type, event.BookingID)),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"booking_id":    event.BookingID,
		"execution_arn": aws.ToString(out.ExecutionArn),
	}).Debug("Booking event published")
	return nil
}

// NopPublisher はイベントを発行しません。ステートマシンが未設定の環境で使います
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }
