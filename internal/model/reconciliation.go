package model

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationReason は手動照合が必要になった理由です
type ReconciliationReason string

const (
	// ReconciliationReasonPersistFailed は決済確定後の予約書き込み失敗を表します
	ReconciliationReasonPersistFailed ReconciliationReason = "booking_persist_failed"
)

// ReconciliationRecord は支払い済みだが予約が記録されていない取引の記録です
// データベースに永続化されるレコードと一致しています
type ReconciliationRecord struct {
	ID              string               `json:"id" db:"id"`
	PaymentIntentID string               `json:"payment_intent_id" db:"payment_intent_id"`
	Customer        string               `json:"customer" db:"customer"`
	Item            string               `json:"item" db:"item"`
	Amount          string               `json:"amount" db:"amount"`
	Reason          ReconciliationReason `json:"reason" db:"reason"`
	Detail          string               `json:"detail" db:"detail"`
	Reported        bool                 `json:"reported" db:"reported"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// NewPersistFailedRecord は予約書き込み失敗時の照合レコードを作成します
func NewPersistFailedRecord(booking NewBooking, cause error) ReconciliationRecord {
	now := time.Now().UTC()
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return ReconciliationRecord{
		ID:              uuid.NewString(),
		PaymentIntentID: booking.PaymentIntentID,
		Customer:        booking.Customer,
		Item:            booking.Item,
		Amount:          booking.Amount,
		Reason:          ReconciliationReasonPersistFailed,
		Detail:          detail,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ReconciliationNotice はステートマシンに渡す照合依頼です
type ReconciliationNotice struct {
	RecordID        string               `json:"record_id"`
	PaymentIntentID string               `json:"payment_intent_id"`
	Customer        string               `json:"customer"`
	Item            string               `json:"item"`
	Amount          string               `json:"amount"`
	AmountMinor     int64                `json:"amount_minor"`
	Reason          ReconciliationReason `json:"reason"`
	CreatedAt       time.Time            `json:"created_at"`
}

// ToNotice は照合レコードを通知に変換します
// 金額が解釈できない場合も通知は作成し、AmountMinor を0とします
func (r ReconciliationRecord) ToNotice() ReconciliationNotice {
	minor, _ := ParseAmount(r.Amount)
	return ReconciliationNotice{
		RecordID:        r.ID,
		PaymentIntentID: r.PaymentIntentID,
		Customer:        r.Customer,
		Item:            r.Item,
		Amount:          r.Amount,
		AmountMinor:     minor,
		Reason:          r.Reason,
		CreatedAt:       r.CreatedAt,
	}
}
