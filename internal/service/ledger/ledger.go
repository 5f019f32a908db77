package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/events"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/repository"
)

// Revenue は確定済み予約の売上集計です
type Revenue struct {
	TotalMinor int64  `json:"total_minor"`
	Total      string `json:"total"`
	Count      int    `json:"count"`
	// Skipped は金額を解釈できず集計から除外した件数です
	Skipped int `json:"skipped"`
}

// LedgerService は予約台帳を担当します
type LedgerService struct {
	repo      repository.BookingRepository
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
	newID     func() string
}

// NewLedgerService は新しいLedgerServiceを作成します
func NewLedgerService(repo repository.BookingRepository, publisher events.Publisher, logger logrus.FieldLogger) *LedgerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LedgerService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Create は予約を作成します。日付が未指定の場合は作成日とします
// 保存に失敗した場合は ErrBookingPersistFailed を返します
func (s *LedgerService) Create(ctx context.Context, in model.NewBooking) (_ *model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "LedgerService.Create")
	defer func() { span.End(err) }()

	now := s.now()
	if in.Date == "" {
		in.Date = now.Format(model.DateLayout)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ID:              s.newID(),
		Customer:        in.Customer,
		Item:            in.Item,
		Date:            in.Date,
		Amount:          in.Amount,
		Status:          in.Status,
		PaymentIntentID: in.PaymentIntentID,
		PaymentMethod:   in.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		if errors.Is(err, model.ErrDuplicatePaymentReference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrBookingPersistFailed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
		"method":     booking.PaymentMethod,
	}).Info("Booking created")

	if err := s.publisher.Publish(ctx, events.NewBookingCreated(*booking)); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to publish booking event")
	}

	return booking, nil
}

// Get は予約を取得します
func (s *LedgerService) Get(ctx context.Context, id string) (*model.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// List は全ての予約を取得します
func (s *LedgerService) List(ctx context.Context) ([]model.Booking, error) {
	return s.repo.List(ctx)
}

// ListByStatus は指定したステータスの予約を取得します
func (s *LedgerService) ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error) {
	return s.repo.ListByStatus(ctx, status)
}

// UpdateStatus は予約のステータスを変更します
// 同じステータスへの変更は何もせずに現在の予約を返します
func (s *LedgerService) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error) {
	return s.Update(ctx, id, model.BookingPatch{Status: &status})
}

// Update は予約を部分更新します。id と決済参照IDは変更されません
func (s *LedgerService) Update(ctx context.Context, id string, patch model.BookingPatch) (_ *model.Booking, err error) {
	ctx, span := tracing.Start(ctx, "LedgerService.Update")
	defer func() { span.End(err) }()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	booking, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, repository.Rollback(tx, err)
	}

	before := *booking
	if err := patch.Apply(booking); err != nil {
		return nil, repository.Rollback(tx, err)
	}
	if *booking == before {
		return booking, repository.Rollback(tx, nil)
	}

	booking.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, tx, booking); err != nil {
		return nil, repository.Rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking update: %w", err)
	}

	if before.Status != booking.Status {
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"from":       before.Status,
			"to":         booking.Status,
		}).Info("Booking status changed")
	}

	return booking, nil
}

// Delete は予約を削除します
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	s.logger.WithField("booking_id", id).Info("Booking deleted")
	return nil
}

// Revenue は確定済み予約の金額を合計します
// 金額は保存された文字列を都度解釈するため、解釈できないものは除外して件数を返します
func (s *LedgerService) Revenue(ctx context.Context) (*Revenue, error) {
	bookings, err := s.repo.ListByStatus(ctx, model.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	rev := &Revenue{}
	for _, b := range bookings {
		minor, err := model.ParseAmount(b.Amount)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Skipping booking with unparsable amount")
			rev.Skipped++
			continue
		}
		rev.TotalMinor += minor
		rev.Count++
	}
	rev.Total = model.FormatAmount(rev.TotalMinor)

	return rev, nil
}
