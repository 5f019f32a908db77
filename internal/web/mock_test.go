package web

import (
	"context"
	"sync"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/ledger"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

type mockSettingsService struct {
	GetFunc    func(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error)
	UpdateFunc func(ctx context.Context, provider model.Provider, patch model.PaymentSettingsPatch) (*model.PaymentSettings, error)
}

func (m *mockSettingsService) Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error) {
	if m.GetFunc == nil {
		return nil, model.ErrProviderNotFound
	}
	return m.GetFunc(ctx, provider)
}

func (m *mockSettingsService) Update(ctx context.Context, provider model.Provider, patch model.PaymentSettingsPatch) (*model.PaymentSettings, error) {
	return m.UpdateFunc(ctx, provider, patch)
}

type mockIntentService struct {
	CreateIntentFunc  func(ctx context.Context, req payment.IntentRequest) (*model.PaymentIntent, error)
	ConfirmIntentFunc func(ctx context.Context, referenceID string) (*model.IntentStatus, error)
}

func (m *mockIntentService) CreateIntent(ctx context.Context, req payment.IntentRequest) (*model.PaymentIntent, error) {
	return m.CreateIntentFunc(ctx, req)
}

func (m *mockIntentService) ConfirmIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error) {
	return m.ConfirmIntentFunc(ctx, referenceID)
}

type mockBookingService struct {
	CreateFunc       func(ctx context.Context, in model.NewBooking) (*model.Booking, error)
	GetFunc          func(ctx context.Context, id string) (*model.Booking, error)
	ListFunc         func(ctx context.Context) ([]model.Booking, error)
	ListByStatusFunc func(ctx context.Context, status model.BookingStatus) ([]model.Booking, error)
	UpdateFunc       func(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error)
	DeleteFunc       func(ctx context.Context, id string) error
	RevenueFunc      func(ctx context.Context) (*ledger.Revenue, error)
}

func (m *mockBookingService) Create(ctx context.Context, in model.NewBooking) (*model.Booking, error) {
	return m.CreateFunc(ctx, in)
}

func (m *mockBookingService) Get(ctx context.Context, id string) (*model.Booking, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockBookingService) List(ctx context.Context) ([]model.Booking, error) {
	return m.ListFunc(ctx)
}

func (m *mockBookingService) ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error) {
	return m.ListByStatusFunc(ctx, status)
}

func (m *mockBookingService) Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error) {
	return m.UpdateFunc(ctx, id, patch)
}

func (m *mockBookingService) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}

func (m *mockBookingService) Revenue(ctx context.Context) (*ledger.Revenue, error) {
	return m.RevenueFunc(ctx)
}

type mockCards struct {
	cards []model.SavedCard
	err   error
}

func (m *mockCards) ListByCustomer(ctx context.Context, email string) ([]model.SavedCard, error) {
	return m.cards, m.err
}

type mockReconciliations struct {
	mu      sync.Mutex
	records []model.ReconciliationRecord
	err     error
}

func (m *mockReconciliations) Create(ctx context.Context, record *model.ReconciliationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *record)
	return nil
}
