package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

const uniqueViolation = "23505"

const bookingColumns = `
	id,
	customer,
	item,
	date,
	amount,
	status,
	COALESCE(payment_intent_id, '') AS payment_intent_id,
	payment_method,
	created_at,
	updated_at`

// BookingRepository は予約台帳の永続化を担当するインターフェースです
type BookingRepository interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Booking, error)
	List(ctx context.Context) ([]model.Booking, error)
	ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error)
	Update(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error
	Delete(ctx context.Context, id string) (bool, error)
}

type BookingRepositoryImpl struct {
	db *DB
}

func NewBookingRepository(db *DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

// BeginTx starts a new transaction
func (r *BookingRepositoryImpl) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTx(ctx)
}

// Create は予約を1件作成します。IDは呼び出し側で採番済みであること
func (r *BookingRepositoryImpl) Create(ctx context.Context, booking *model.Booking) (err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.Create")
	defer func() { span.End(err) }()

	query := `
		INSERT INTO bookings (
			id,
			customer,
			item,
			date,
			amount,
			status,
			payment_intent_id,
			payment_method,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10
		)`

	_, err = r.db.ExecContext(ctx, query,
		booking.ID,
		booking.Customer,
		booking.Item,
		booking.Date,
		booking.Amount,
		booking.Status,
		booking.PaymentIntentID,
		booking.PaymentMethod,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", model.ErrDuplicatePaymentReference, booking.PaymentIntentID)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	return nil
}

// GetByID は指定されたIDの予約を取得します
func (r *BookingRepositoryImpl) GetByID(ctx context.Context, id string) (_ *model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.GetByID")
	defer func() { span.End(err) }()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking model.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}

	return &booking, nil
}

// GetForUpdate はトランザクション内で予約を行ロック付きで取得します
func (r *BookingRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (_ *model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.GetForUpdate")
	defer func() { span.End(err) }()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	var booking model.Booking
	if err := tx.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock booking %s: %w", id, err)
	}

	return &booking, nil
}

// List は全ての予約を新しい順に取得します
func (r *BookingRepositoryImpl) List(ctx context.Context) (_ []model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.List")
	defer func() { span.End(err) }()

	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC`

	bookings := []model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// ListByStatus は、指定されたステータスの予約を取得します
func (r *BookingRepositoryImpl) ListByStatus(ctx context.Context, status model.BookingStatus) (_ []model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.ListByStatus")
	defer func() { span.End(err) }()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 ORDER BY created_at ASC`

	bookings := []model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, status); err != nil {
		return nil, fmt.Errorf("failed to query bookings with status %s: %w", status, err)
	}

	return bookings, nil
}

// Update は予約の内容を更新します
// id と payment_intent_id は更新しません
func (r *BookingRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) (err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.Update")
	defer func() { span.End(err) }()

	query := `
		UPDATE bookings
		SET customer = $1,
			item = $2,
			date = $3,
			amount = $4,
			status = $5,
			updated_at = $6
		WHERE id = $7`

	result, err := tx.ExecContext(ctx, query,
		booking.Customer,
		booking.Item,
		booking.Date,
		booking.Amount,
		booking.Status,
		booking.UpdatedAt,
		booking.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, booking.ID)
	}

	return nil
}

// Delete は予約を削除します。対象が存在しない場合は false を返します
func (r *BookingRepositoryImpl) Delete(ctx context.Context, id string) (_ bool, err error) {
	ctx, span := tracing.Start(ctx, "BookingRepository.Delete")
	defer func() { span.End(err) }()

	result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
