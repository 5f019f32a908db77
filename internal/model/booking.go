package model

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus は予約のステータスを表します
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "Confirmed"
	BookingStatusPending   BookingStatus = "Pending"
	BookingStatusCancelled BookingStatus = "Cancelled"
)

// PaymentMethod は予約時に選択された支払い方法です
type PaymentMethod string

const (
	PaymentMethodStoredCard   PaymentMethod = "stored_card"
	PaymentMethodNewCard      PaymentMethod = "new_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// DateLayout は予約日付の形式です
const DateLayout = "2006-01-02"

// Booking は予約台帳のレコードです
// customer と item は予約時点の表示名を非正規化して保持します
type Booking struct {
	ID              string        `json:"id" db:"id"`
	Customer        string        `json:"customer" db:"customer"`
	Item            string        `json:"item" db:"item"`
	Date            string        `json:"date" db:"date"`
	Amount          string        `json:"amount" db:"amount"`
	Status          BookingStatus `json:"status" db:"status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// NewBooking は予約作成時の入力です。IDは台帳側で採番します
type NewBooking struct {
	Customer        string        `json:"customer"`
	Item            string        `json:"item"`
	Date            string        `json:"date"`
	Amount          string        `json:"amount"`
	Status          BookingStatus `json:"status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty"`
}

// BookingPatch は管理者による予約の部分更新です
// id と payment_intent_id は更新対象に含めません
type BookingPatch struct {
	Customer *string        `json:"customer"`
	Item     *string        `json:"item"`
	Date     *string        `json:"date"`
	Amount   *string        `json:"amount"`
	Status   *BookingStatus `json:"status"`
}

// ParseBookingStatus は大文字小文字を区別せずにステータスを解釈します
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed":
		return BookingStatusConfirmed, nil
	case "pending":
		return BookingStatusPending, nil
	case "cancelled", "canceled":
		return BookingStatusCancelled, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrValidationFailed, s)
}

var allowedTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
}

// CanTransition は from から to への遷移が許可されているかを返します
// 同一ステータスへの更新は変更なしとして許可します
func CanTransition(from, to BookingStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate は予約作成時の入力を検証します
func (b *NewBooking) Validate() error {
	if strings.TrimSpace(b.Customer) == "" {
		return fmt.Errorf("%w: customer is required", ErrValidationFailed)
	}
	if strings.TrimSpace(b.Item) == "" {
		return fmt.Errorf("%w: item is required", ErrValidationFailed)
	}
	if _, err := ParseAmount(b.Amount); err != nil {
		return err
	}
	if b.Date != "" {
		if _, err := time.Parse(DateLayout, b.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidationFailed)
		}
	}

	switch b.Status {
	case BookingStatusConfirmed:
	case BookingStatusPending:
		// 銀行振込は支払い確認前のため決済参照IDを持たない
		if b.PaymentIntentID != "" {
			return fmt.Errorf("%w: a pending booking cannot carry a payment reference", ErrValidationFailed)
		}
	default:
		return fmt.Errorf("%w: bookings are created as Confirmed or Pending, got %q", ErrValidationFailed, b.Status)
	}

	if b.PaymentMethod == PaymentMethodNewCard && b.PaymentIntentID == "" {
		return fmt.Errorf("%w: new card bookings require a payment reference", ErrValidationFailed)
	}
	return nil
}

// Apply はパッチを予約に適用します。ステータス遷移の検証も行います
func (p BookingPatch) Apply(b *Booking) error {
	if p.Customer != nil {
		b.Customer = *p.Customer
	}
	if p.Item != nil {
		b.Item = *p.Item
	}
	if p.Date != nil {
		if _, err := time.Parse(DateLayout, *p.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidationFailed)
		}
		b.Date = *p.Date
	}
	if p.Amount != nil {
		if _, err := ParseAmount(*p.Amount); err != nil {
			return err
		}
		b.Amount = *p.Amount
	}
	if p.Status != nil {
		if !CanTransition(b.Status, *p.Status) {
			return &TransitionError{From: b.Status, To: *p.Status}
		}
		b.Status = *p.Status
	}
	return nil
}

// UnmarshalJSON は "confirmed" のような小文字表記も受け付けます
func (s *BookingStatus) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	status, err := ParseBookingStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}
