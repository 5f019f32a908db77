package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
)

func TestFlow_Open(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(fx *fixture)
		wantMethods []model.PaymentMethod
		wantErr     error
	}{
		{
			name:        "全ての支払い方法が利用可能",
			setup:       func(fx *fixture) {},
			wantMethods: []model.PaymentMethod{model.PaymentMethodStoredCard, model.PaymentMethodNewCard, model.PaymentMethodBankTransfer},
		},
		{
			name:        "保存済みカードがなければstored_cardは提示しない",
			setup:       func(fx *fixture) { fx.cards.cards = nil },
			wantMethods: []model.PaymentMethod{model.PaymentMethodNewCard, model.PaymentMethodBankTransfer},
		},
		{
			name:        "保存済みカードの取得失敗は選択肢を狭めるだけ",
			setup:       func(fx *fixture) { fx.cards.err = errDBDown },
			wantMethods: []model.PaymentMethod{model.PaymentMethodNewCard, model.PaymentMethodBankTransfer},
		},
		{
			name: "設定の取得失敗は選択肢を狭めるだけ",
			setup: func(fx *fixture) {
				fx.settings.errs = map[model.Provider]error{model.ProviderBankTransfer: errDBDown}
			},
			wantMethods: []model.PaymentMethod{model.PaymentMethodStoredCard, model.PaymentMethodNewCard},
		},
		{
			name: "無効なプロバイダは提示しない",
			setup: func(fx *fixture) {
				fx.settings.settings[model.ProviderStripe].Enabled = false
				fx.settings.settings[model.ProviderStoredCard].Enabled = false
			},
			wantMethods: []model.PaymentMethod{model.PaymentMethodBankTransfer},
		},
		{
			name: "選択肢が空ならErrNoPaymentMethods",
			setup: func(fx *fixture) {
				fx.cards.err = errDBDown
				fx.settings.errs = map[model.Provider]error{
					model.ProviderStripe:       errDBDown,
					model.ProviderBankTransfer: errDBDown,
				}
			},
			wantMethods: []model.PaymentMethod{},
			wantErr:     model.ErrNoPaymentMethods,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			tt.setup(fx)
			flow := fx.flow()

			opts, err := flow.Open(context.Background(), customer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotEmpty(t, opts.Message)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantMethods, opts.Methods)
			assert.Equal(t, StateSelectingDetails, flow.State())
		})
	}
}

// 保存済みカードでの予約はConfirmedで決済参照IDを持たない
func TestFlow_StoredCardBooking(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)

	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodStoredCard}))
	assert.Equal(t, StateAwaitingStoredCardSubmit, flow.State())

	outcome, err := flow.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, flow.State())
	assert.Equal(t, model.BookingStatusConfirmed, outcome.Booking.Status)
	assert.Empty(t, outcome.Booking.PaymentIntentID)
	assert.Contains(t, outcome.Message, "4242")
	require.Len(t, fx.ledger.bookings, 1)
	assert.Equal(t, 0, fx.broker.createCalls)
	assert.Equal(t, 0, fx.broker.confirmCalls)
}

// 新規カードでの予約は決済完了を確認してから参照ID付きで記録する
func TestFlow_NewCardBooking(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)

	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	assert.Equal(t, StateAwaitingNewCardConfirmation, flow.State())
	assert.Equal(t, int64(320000), flow.Intent().Amount)

	entry := &mockCardEntry{results: []CardResult{Success("pi_1")}}
	outcome, err := flow.Submit(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, flow.State())
	assert.Equal(t, model.BookingStatusConfirmed, outcome.Booking.Status)
	assert.Equal(t, "pi_1", outcome.Booking.PaymentIntentID)
	assert.Equal(t, model.PaymentMethodNewCard, outcome.Method)
	assert.Equal(t, 1, fx.broker.confirmCalls)
	require.Len(t, fx.ledger.bookings, 1)

	_, err = flow.Submit(context.Background(), entry)
	assert.ErrorIs(t, err, ErrCheckoutFinished)
	assert.Len(t, fx.ledger.bookings, 1)
}

// 銀行振込の予約はPendingで振込先を返す
func TestFlow_BankTransferBooking(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)

	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodBankTransfer}))
	outcome, err := flow.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, outcome.Booking.Status)
	assert.Empty(t, outcome.Booking.PaymentIntentID)
	require.NotNil(t, outcome.BankTransfer)
	assert.Equal(t, "Acme Bank", outcome.BankTransfer.BankName)
	assert.Contains(t, outcome.Message, "bank transfer")
}

// ゲートウェイが利用できない場合は新規カードを選択肢から外し、他の方法で予約できる
func TestFlow_GatewayUnavailable(t *testing.T) {
	fx := newFixture()
	fx.broker.createErr = model.ErrGatewayUnavailable
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)

	err = flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard})
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	assert.Equal(t, StateSelectingDetails, flow.State())
	assert.False(t, flow.Options().Has(model.PaymentMethodNewCard))

	err = flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard})
	assert.ErrorIs(t, err, model.ErrMethodUnavailable)

	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodBankTransfer}))
	outcome, err := flow.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, outcome.Booking.Status)
}

func TestFlow_IntentCreationFailedCanBeRetried(t *testing.T) {
	fx := newFixture()
	fx.broker.createErr = errors.New("gateway timeout")
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)

	err = flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard})
	assert.ErrorIs(t, err, model.ErrIntentCreationFailed)
	assert.Equal(t, StateSelectingDetails, flow.State())
	assert.True(t, flow.Options().Has(model.PaymentMethodNewCard))

	fx.broker.createErr = nil
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	assert.Equal(t, StateAwaitingNewCardConfirmation, flow.State())
}

// 決済後に予約が記録できない場合はFailedとなり照合レコードを残す
func TestFlow_PaidButNotRecorded(t *testing.T) {
	fx := newFixture()
	fx.ledger.err = errDBDown
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))

	_, err = flow.Submit(context.Background(), &mockCardEntry{results: []CardResult{Success("pi_1")}})
	assert.ErrorIs(t, err, model.ErrBookingPersistFailed)
	assert.Equal(t, StateFailed, flow.State())
	assert.ErrorIs(t, flow.Err(), model.ErrBookingPersistFailed)
	assert.Equal(t, 1, fx.broker.confirmCalls)

	require.Len(t, fx.recon.records, 1)
	assert.Equal(t, "pi_1", fx.recon.records[0].PaymentIntentID)
	assert.Equal(t, model.ReconciliationReasonPersistFailed, fx.recon.records[0].Reason)
	assert.Equal(t, "$3,200", fx.recon.records[0].Amount)
}

// 決済参照の重複は既に予約が記録済みであり、照合レコードは残さない
func TestFlow_DuplicatePaymentReference(t *testing.T) {
	fx := newFixture()
	fx.ledger.err = model.ErrDuplicatePaymentReference
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))

	_, err = flow.Submit(context.Background(), &mockCardEntry{results: []CardResult{Success("pi_1")}})
	assert.ErrorIs(t, err, model.ErrDuplicatePaymentReference)
	assert.NotErrorIs(t, err, model.ErrBookingPersistFailed)
	assert.Equal(t, StateFailed, flow.State())
	assert.Empty(t, fx.recon.records)
}

// 予約情報を変えて開き直した場合は新しいインテントを作成する
func TestFlow_ReopenWithOtherDetailsDropsIntent(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	assert.Equal(t, 1, fx.broker.createCalls)

	// 同じ予約情報なら作成済みのインテントを再利用する
	_, err = flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NotNil(t, flow.Intent())
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	assert.Equal(t, 1, fx.broker.createCalls)

	other := Details{Name: "John Roe", Email: "john@example.com", Date: "2025-03-01"}
	_, err = flow.Open(context.Background(), other)
	require.NoError(t, err)
	assert.Nil(t, flow.Intent())
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	assert.Equal(t, 2, fx.broker.createCalls)
}

func TestFlow_CardEntryFailureAndPending(t *testing.T) {
	tests := []struct {
		name    string
		result  CardResult
		wantErr error
	}{
		{
			name:    "カード拒否では確認も予約も行わない",
			result:  Failure("Your card was declined.", model.ErrCardDeclined),
			wantErr: model.ErrCardDeclined,
		},
		{
			name:    "入力エラーでは確認も予約も行わない",
			result:  Failure("Invalid card.", model.ErrValidationFailed),
			wantErr: model.ErrValidationFailed,
		},
		{
			name:    "追加認証待ちでは確認も予約も行わない",
			result:  Pending(),
			wantErr: ErrPaymentPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			flow := fx.flow()
			_, err := flow.Open(context.Background(), customer)
			require.NoError(t, err)
			require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))

			entry := &mockCardEntry{results: []CardResult{tt.result, Success("pi_1")}}
			_, err = flow.Submit(context.Background(), entry)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateAwaitingNewCardConfirmation, flow.State())
			assert.Equal(t, 0, fx.broker.confirmCalls)
			assert.Empty(t, fx.ledger.bookings)

			// 再試行は同じインテントを使う
			outcome, err := flow.Submit(context.Background(), entry)
			require.NoError(t, err)
			assert.Equal(t, "pi_1", outcome.Booking.PaymentIntentID)
			require.Len(t, entry.intents, 2)
			assert.Same(t, entry.intents[0], entry.intents[1])
			assert.Equal(t, 1, fx.broker.createCalls)
		})
	}
}

func TestFlow_ConfirmationNotSucceeded(t *testing.T) {
	fx := newFixture()
	fx.broker.confirmStatus = "processing"
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))

	_, err = flow.Submit(context.Background(), &mockCardEntry{results: []CardResult{Success("pi_1")}})
	assert.ErrorIs(t, err, model.ErrConfirmationFailed)
	assert.Equal(t, StateFailed, flow.State())
	assert.Empty(t, fx.ledger.bookings)
	assert.Empty(t, fx.recon.records)
}

func TestFlow_SubmissionInProgress(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))

	entry := &mockCardEntry{
		results: []CardResult{Success("pi_1")},
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), entry)
		done <- err
	}()
	<-entry.entered

	_, err = flow.Submit(context.Background(), entry)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.ErrorIs(t, flow.Reset(), ErrSubmissionInProgress)

	close(entry.block)
	require.NoError(t, <-done)
	assert.Len(t, fx.ledger.bookings, 1)
}

func TestFlow_Reset(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), customer)
	require.NoError(t, err)
	require.NoError(t, flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodNewCard}))
	require.NotNil(t, flow.Intent())

	require.NoError(t, flow.Reset())
	assert.Equal(t, StateSelectingDetails, flow.State())
	assert.Nil(t, flow.Intent())

	_, err = flow.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMethodSelected)
}

func TestFlow_SelectMethodValidation(t *testing.T) {
	fx := newFixture()
	flow := fx.flow()
	_, err := flow.Open(context.Background(), Details{Email: "jane@example.com"})
	require.NoError(t, err)

	err = flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodBankTransfer})
	assert.ErrorIs(t, err, model.ErrValidationFailed)

	require.NoError(t, flow.SetDetails(customer))
	err = flow.SelectMethod(context.Background(), Selection{Method: model.PaymentMethodStoredCard, SavedCardID: "card-unknown"})
	assert.ErrorIs(t, err, model.ErrMethodUnavailable)

	assert.ErrorIs(t, flow.SetDetails(Details{Name: "Jane", Email: "jane@example.com", Date: "03/01/2025"}), model.ErrValidationFailed)
}
