package model

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable は決済ゲートウェイが無効または未設定の場合のエラーです
	ErrGatewayUnavailable = errors.New("payment gateway is not available")
	// ErrIntentCreationFailed はゲートウェイ側でのインテント作成失敗です
	ErrIntentCreationFailed = errors.New("payment intent creation failed")
	ErrCardDeclined         = errors.New("card declined")
	ErrValidationFailed     = errors.New("validation failed")
	// ErrConfirmationFailed はクライアントが成功と判断した決済をサーバー側で確認できなかった場合のエラーです
	ErrConfirmationFailed = errors.New("payment confirmation failed")
	// ErrBookingPersistFailed は決済確定後に予約台帳への書き込みが失敗した場合のエラーです
	// 支払い済みで予約が存在しない状態になるため手動照合が必要です
	ErrBookingPersistFailed = errors.New("booking could not be recorded after payment")

	ErrNotFound                  = errors.New("booking not found")
	ErrProviderNotFound          = errors.New("payment provider not found")
	ErrInvalidTransition         = errors.New("invalid booking status transition")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrNoPaymentMethods          = errors.New("no payment methods are available")
	ErrMethodUnavailable         = errors.New("payment method is not available")
	ErrDuplicatePaymentReference = errors.New("payment reference is already recorded")
)

// PaymentNotCompletedError はゲートウェイが succeeded 以外のステータスを返した場合のエラーです
type PaymentNotCompletedError struct {
	Status string
}

func (e *PaymentNotCompletedError) Error() string {
	return fmt.Sprintf("payment not completed: status %s", e.Status)
}

func (e *PaymentNotCompletedError) Unwrap() error {
	return ErrConfirmationFailed
}

// TransitionError は許可されていないステータス遷移を表します
type TransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change booking status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
