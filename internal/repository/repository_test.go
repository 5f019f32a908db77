package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDB(sqlx.NewDb(conn, "postgres")), mock
}

var bookingRowColumns = []string{
	"id", "customer", "item", "date", "amount", "status",
	"payment_intent_id", "payment_method", "created_at", "updated_at",
}

func TestBookingRepository_Create(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	booking := &model.Booking{
		ID:              "b-1",
		Customer:        "Jane Doe",
		Item:            "Kyoto Trip",
		Date:            "2025-03-01",
		Amount:          "$3,200",
		Status:          model.BookingStatusConfirmed,
		PaymentIntentID: "pi_123",
		PaymentMethod:   model.PaymentMethodNewCard,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tests := []struct {
		name    string
		execErr error
		wantErr error
	}{
		{
			name:    "予約を作成できる",
			execErr: nil,
		},
		{
			name:    "決済参照IDの重複はErrDuplicatePaymentReferenceになる",
			execErr: &pq.Error{Code: "23505"},
			wantErr: model.ErrDuplicatePaymentReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewBookingRepository(db)

			exp := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
				WithArgs("b-1", "Jane Doe", "Kyoto Trip", "2025-03-01", "$3,200",
					model.BookingStatusConfirmed, "pi_123", model.PaymentMethodNewCard, now, now)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := repo.Create(context.Background(), booking)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingRepository_GetByID(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("存在する予約を取得できる", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		rows := sqlmock.NewRows(bookingRowColumns).
			AddRow("b-1", "Jane Doe", "Kyoto Trip", "2025-03-01", "$3,200", "Pending", "", "bank_transfer", now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = $1")).
			WithArgs("b-1").
			WillReturnRows(rows)

		got, err := repo.GetByID(context.Background(), "b-1")
		require.NoError(t, err)
		assert.Equal(t, model.BookingStatusPending, got.Status)
		assert.Equal(t, "", got.PaymentIntentID)
		assert.Equal(t, model.PaymentMethodBankTransfer, got.PaymentMethod)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("存在しない予約はErrNotFoundになる", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(bookingRowColumns))

		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestBookingRepository_UpdateAndDelete(t *testing.T) {
	now := time.Now().UTC()

	t.Run("更新対象がない場合はErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)

		err = repo.Update(context.Background(), tx, &model.Booking{ID: "b-9", Status: model.BookingStatusCancelled, UpdatedAt: now})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("削除件数に応じて結果を返す", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE id = $1")).
			WithArgs("b-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE id = $1")).
			WithArgs("b-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := repo.Delete(context.Background(), "b-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(context.Background(), "b-1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestPaymentSettingRepository_Get(t *testing.T) {
	now := time.Now().UTC()
	columns := []string{"provider", "enabled", "publishable_key", "secret_key", "additional_config", "updated_at"}

	t.Run("追加設定をプロバイダごとの型で復元する", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentSettingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM payment_settings WHERE provider = $1")).
			WithArgs(model.ProviderStripe).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("stripe", true, "pk_test", "sk_test_abcd", []byte(`{"currency":"eur"}`), now))

		got, err := repo.Get(context.Background(), model.ProviderStripe)
		require.NoError(t, err)
		cfg, ok := got.Config.(*model.StripeConfig)
		require.True(t, ok)
		assert.Equal(t, "eur", cfg.Currency)
		assert.Equal(t, "sk_test_abcd", got.SecretKey)
	})

	t.Run("行がない場合はErrProviderNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentSettingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta("FROM payment_settings WHERE provider = $1")).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.Get(context.Background(), model.ProviderBankTransfer)
		assert.ErrorIs(t, err, model.ErrProviderNotFound)
	})
}

func TestPaymentSettingRepository_Save(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentSettingRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_settings")).
		WithArgs(true, "", "", []byte(`{"bankName":"Acme","accountName":"Voyage","accountNumber":"123"}`), now, model.ProviderBankTransfer).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	err = repo.Save(context.Background(), tx, &model.PaymentSettings{
		Provider:  model.ProviderBankTransfer,
		Enabled:   true,
		Config:    &model.BankTransferConfig{BankName: "Acme", AccountName: "Voyage", AccountNumber: "123"},
		UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavedCardRepository_ListByCustomer(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSavedCardRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM saved_cards")).
		WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_email", "brand", "last4", "exp_month", "exp_year"}).
			AddRow("card-1", "Jane@Example.com", "visa", "4242", 12, 2030))

	cards, err := repo.ListByCustomer(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "4242", cards[0].Last4)
}

func TestReconciliationRepository(t *testing.T) {
	t.Run("未報告レコードを報告済みにする", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReconciliationRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_reconciliations")).
			WithArgs(sqlmock.AnyArg(), "r-1", "r-2").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)
		require.NoError(t, repo.MarkReported(context.Background(), tx, []string{"r-1", "r-2"}))
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("空のIDリストではクエリを発行しない", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReconciliationRepository(db)

		mock.ExpectBegin()
		tx, err := repo.BeginTx(context.Background())
		require.NoError(t, err)
		assert.NoError(t, repo.MarkReported(context.Background(), tx, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("照合レコードを作成する", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReconciliationRepository(db)

		record := model.NewPersistFailedRecord(model.NewBooking{
			Customer:        "Jane Doe",
			Item:            "Kyoto Trip",
			Amount:          "$3,200",
			PaymentIntentID: "pi_123",
		}, errors.New("connection reset"))

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_reconciliations")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), &record))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
