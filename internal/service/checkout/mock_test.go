package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/mozila9822/website-VOY-sub000/internal/common/logging"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

type mockCards struct {
	cards []model.SavedCard
	err   error
}

func (m *mockCards) ListByCustomer(ctx context.Context, email string) ([]model.SavedCard, error) {
	return m.cards, m.err
}

type mockSettings struct {
	settings map[model.Provider]*model.PaymentSettings
	errs     map[model.Provider]error
}

func (m *mockSettings) Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error) {
	if err := m.errs[provider]; err != nil {
		return nil, err
	}
	s, ok := m.settings[provider]
	if !ok {
		return nil, model.ErrProviderNotFound
	}
	return s, nil
}

type mockBroker struct {
	mu            sync.Mutex
	createCalls   int
	confirmCalls  int
	createErr     error
	confirmStatus string
	confirmErr    error
}

func (m *mockBroker) CreateIntent(ctx context.Context, req payment.IntentRequest) (*model.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	amount, err := req.Amount.Minor()
	if err != nil {
		return nil, err
	}
	return &model.PaymentIntent{ReferenceID: "pi_1", ClientSecret: "pi_1_secret", Amount: amount, Currency: "usd"}, nil
}

func (m *mockBroker) ConfirmIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmCalls++
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	status := &model.IntentStatus{ID: referenceID, Status: m.confirmStatus}
	if !status.Succeeded() {
		return status, &model.PaymentNotCompletedError{Status: m.confirmStatus}
	}
	return status, nil
}

type mockLedger struct {
	mu       sync.Mutex
	bookings []model.Booking
	err      error
}

func (m *mockLedger) Create(ctx context.Context, in model.NewBooking) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b := model.Booking{
		ID:              "b-1",
		Customer:        in.Customer,
		Item:            in.Item,
		Date:            in.Date,
		Amount:          in.Amount,
		Status:          in.Status,
		PaymentIntentID: in.PaymentIntentID,
		PaymentMethod:   in.PaymentMethod,
	}
	m.bookings = append(m.bookings, b)
	return &b, nil
}

type mockReconciliations struct {
	records []model.ReconciliationRecord
}

func (m *mockReconciliations) Create(ctx context.Context, record *model.ReconciliationRecord) error {
	m.records = append(m.records, *record)
	return nil
}

// mockCardEntry は決められた結果を返すカード入力です
type mockCardEntry struct {
	results []CardResult
	intents []*model.PaymentIntent
	block   chan struct{}
	entered chan struct{}
}

func (m *mockCardEntry) Submit(ctx context.Context, intent *model.PaymentIntent) CardResult {
	m.intents = append(m.intents, intent)
	if m.entered != nil {
		close(m.entered)
	}
	if m.block != nil {
		<-m.block
	}
	res := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return res
}

type fixture struct {
	cards    *mockCards
	settings *mockSettings
	broker   *mockBroker
	ledger   *mockLedger
	recon    *mockReconciliations
}

func newFixture() *fixture {
	return &fixture{
		cards: &mockCards{cards: []model.SavedCard{{ID: "card-1", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}}},
		settings: &mockSettings{settings: map[model.Provider]*model.PaymentSettings{
			model.ProviderStripe: {
				Provider: model.ProviderStripe, Enabled: true, PublishableKey: "pk_test", SecretKey: "sk_test",
				Config: &model.StripeConfig{},
			},
			model.ProviderStoredCard: {
				Provider: model.ProviderStoredCard, Enabled: true, Config: &model.StoredCardConfig{},
			},
			model.ProviderBankTransfer: {
				Provider: model.ProviderBankTransfer, Enabled: true,
				Config: &model.BankTransferConfig{BankName: "Acme Bank", AccountName: "Voyage", AccountNumber: "000123"},
			},
		}},
		broker: &mockBroker{confirmStatus: model.IntentStatusSucceeded},
		ledger: &mockLedger{},
		recon:  &mockReconciliations{},
	}
}

func (fx *fixture) flow() *Flow {
	return NewFlow(Dependencies{
		Cards:           fx.cards,
		Settings:        fx.settings,
		Broker:          fx.broker,
		Ledger:          fx.ledger,
		Reconciliations: fx.recon,
		Logger:          logging.Discard(),
	}, Item{Title: "Kyoto Trip", Amount: "$3,200"})
}

var errDBDown = errors.New("database is down")

var customer = Details{Name: "Jane Doe", Email: "jane@example.com", Date: "2025-03-01"}
