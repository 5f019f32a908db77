package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

// State はチェックアウトの状態です
type State string

const (
	StateSelectingDetails            State = "SelectingDetails"
	StateAwaitingStoredCardSubmit    State = "AwaitingStoredCardSubmit"
	StateAwaitingNewCardIntent       State = "AwaitingNewCardIntent"
	StateAwaitingNewCardConfirmation State = "AwaitingNewCardConfirmation"
	StateAwaitingBankTransferSubmit  State = "AwaitingBankTransferSubmit"
	StateCompleted                   State = "Completed"
	StateFailed                      State = "Failed"
)

var (
	// ErrSubmissionInProgress は送信中に再度送信された場合のエラーです
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	// ErrPaymentPending はカード決済に追加の操作が必要で、まだ完了していないことを表します
	ErrPaymentPending   = errors.New("payment requires further action")
	ErrNoMethodSelected = errors.New("no payment method selected")
	ErrCheckoutFinished = errors.New("checkout has already finished")
)

// SavedCardLister は顧客の保存済みカードを取得します
type SavedCardLister interface {
	ListByCustomer(ctx context.Context, email string) ([]model.SavedCard, error)
}

// IntentBroker は決済インテントの作成と確認を行います
type IntentBroker interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*model.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error)
}

// BookingRecorder は予約台帳に予約を記録します
type BookingRecorder interface {
	Create(ctx context.Context, in model.NewBooking) (*model.Booking, error)
}

// ReconciliationRecorder は支払い済みで予約が記録できなかった取引を記録します
type ReconciliationRecorder interface {
	Create(ctx context.Context, record *model.ReconciliationRecord) error
}

// Dependencies はチェックアウトが使う外部のサービスです
type Dependencies struct {
	Cards           SavedCardLister
	Settings        payment.SettingsReader
	Broker          IntentBroker
	Ledger          BookingRecorder
	Reconciliations ReconciliationRecorder
	Logger          logrus.FieldLogger
}

// Item は予約対象の商品です。カタログから取得した表示名と価格を渡します
type Item struct {
	Title  string
	Amount string
}

// Details は顧客が入力する予約情報です
type Details struct {
	Name  string
	Email string
	Date  string
}

// Selection は支払い方法の選択です。保存済みカードの場合はカードIDを指定できます
type Selection struct {
	Method      model.PaymentMethod
	SavedCardID string
}

// Options は顧客に提示する支払い方法の選択肢です
type Options struct {
	Methods        []model.PaymentMethod     `json:"methods"`
	SavedCards     []model.SavedCard         `json:"savedCards,omitempty"`
	PublishableKey string                    `json:"publishableKey,omitempty"`
	BankTransfer   *model.BankTransferConfig `json:"bankTransfer,omitempty"`
	Message        string                    `json:"message,omitempty"`
}

// Has は選択肢に method が含まれるかを返します
func (o Options) Has(method model.PaymentMethod) bool {
	for _, m := range o.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (o *Options) remove(method model.PaymentMethod) {
	methods := make([]model.PaymentMethod, 0, len(o.Methods))
	for _, m := range o.Methods {
		if m != method {
			methods = append(methods, m)
		}
	}
	o.Methods = methods
	if len(o.Methods) == 0 {
		o.Message = noMethodsMessage
	}
}

const noMethodsMessage = "No payment methods are available right now. Please contact support to complete your booking."

// Outcome はチェックアウト完了時の結果です
type Outcome struct {
	Booking      *model.Booking            `json:"booking"`
	Method       model.PaymentMethod       `json:"method"`
	Message      string                    `json:"message"`
	BankTransfer *model.BankTransferConfig `json:"bankTransfer,omitempty"`
}

// Flow は1件の予約のチェックアウトを進める状態機械です
// 送信中の再送信は ErrSubmissionInProgress で拒否します
type Flow struct {
	deps Dependencies
	item Item

	mu         sync.Mutex
	state      State
	details    Details
	options    Options
	selection  Selection
	intent     *model.PaymentIntent
	outcome    *Outcome
	lastErr    error
	submitting bool
}

// NewFlow は新しいチェックアウトを作成します
func NewFlow(deps Dependencies, item Item) *Flow {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Flow{
		deps:  deps,
		item:  item,
		state: StateSelectingDetails,
	}
}

// State は現在の状態を返します
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Options は現在の支払い方法の選択肢を返します
func (f *Flow) Options() Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.options
}

// Intent は作成済みの決済インテントを返します
func (f *Flow) Intent() *model.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intent
}

// Outcome は完了時の結果を返します。未完了の場合は nil です
func (f *Flow) Outcome() *Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

// Err は Failed に遷移した原因を返します
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Open はチェックアウトを開始し、支払い方法の選択肢を取得します
// 取得は並行して行い、失敗したものは選択肢から外すだけでエラーにはしません
// 予約情報が変わった場合は作成済みの決済インテントを破棄します
// 選択肢が空の場合は ErrNoPaymentMethods を返します
func (f *Flow) Open(ctx context.Context, details Details) (Options, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return Options{}, ErrSubmissionInProgress
	}
	f.state = StateSelectingDetails
	if f.details != details {
		// インテントのメタデータは作成時の顧客情報を持つため作り直す
		f.intent = nil
	}
	f.details = details
	f.selection = Selection{}
	f.outcome = nil
	f.lastErr = nil
	f.mu.Unlock()

	opts := f.fetchOptions(ctx, details.Email)

	f.mu.Lock()
	f.options = opts
	f.mu.Unlock()

	if len(opts.Methods) == 0 {
		return opts, model.ErrNoPaymentMethods
	}
	return opts, nil
}

func (f *Flow) fetchOptions(ctx context.Context, email string) Options {
	var (
		wg         sync.WaitGroup
		cards      []model.SavedCard
		gateway    *model.PaymentSettings
		storedCard *model.PaymentSettings
		bank       *model.PaymentSettings
	)
	log := f.deps.Logger.WithField("customer_email", email)

	fetchSettings := func(provider model.Provider, dst **model.PaymentSettings) {
		defer wg.Done()
		s, err := f.deps.Settings.Get(ctx, provider)
		if err != nil {
			log.WithError(err).WithField("provider", provider).Warn("Failed to load payment settings")
			return
		}
		*dst = s
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		if strings.TrimSpace(email) == "" {
			return
		}
		c, err := f.deps.Cards.ListByCustomer(ctx, email)
		if err != nil {
			log.WithError(err).Warn("Failed to load saved cards")
			return
		}
		cards = c
	}()
	go fetchSettings(model.ProviderStripe, &gateway)
	go fetchSettings(model.ProviderStoredCard, &storedCard)
	go fetchSettings(model.ProviderBankTransfer, &bank)
	wg.Wait()

	opts := Options{Methods: []model.PaymentMethod{}}
	if len(cards) > 0 && storedCard != nil && storedCard.Enabled {
		opts.Methods = append(opts.Methods, model.PaymentMethodStoredCard)
		opts.SavedCards = cards
	}
	if gateway != nil && gateway.Enabled {
		opts.Methods = append(opts.Methods, model.PaymentMethodNewCard)
		opts.PublishableKey = gateway.PublishableKey
	}
	if bank != nil && bank.Enabled {
		opts.Methods = append(opts.Methods, model.PaymentMethodBankTransfer)
		if cfg, ok := bank.Config.(*model.BankTransferConfig); ok {
			opts.BankTransfer = cfg
		}
	}
	if len(opts.Methods) == 0 {
		opts.Message = noMethodsMessage
	}
	return opts
}

// SetDetails は予約情報を更新します
func (f *Flow) SetDetails(details Details) error {
	if details.Date != "" {
		if _, err := time.Parse(model.DateLayout, details.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", model.ErrValidationFailed)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.details = details
	return nil
}

// editableLocked は入力を変更できる状態かを確認します。f.mu を保持して呼び出すこと
func (f *Flow) editableLocked() error {
	if f.submitting {
		return ErrSubmissionInProgress
	}
	switch f.state {
	case StateCompleted, StateFailed:
		return ErrCheckoutFinished
	}
	return nil
}

// SelectMethod は支払い方法を選択します
// 新規カードの場合は決済インテントを作成し、ゲートウェイが利用できなければ選択肢から外します
func (f *Flow) SelectMethod(ctx context.Context, sel Selection) error {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if !f.options.Has(sel.Method) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrMethodUnavailable, sel.Method)
	}
	if err := f.validateDetailsLocked(); err != nil {
		f.mu.Unlock()
		return err
	}

	switch sel.Method {
	case model.PaymentMethodStoredCard:
		if sel.SavedCardID == "" && len(f.options.SavedCards) > 0 {
			sel.SavedCardID = f.options.SavedCards[0].ID
		}
		if _, ok := f.savedCardLocked(sel.SavedCardID); !ok {
			f.mu.Unlock()
			return fmt.Errorf("%w: saved card %s", model.ErrMethodUnavailable, sel.SavedCardID)
		}
		f.selection = sel
		f.state = StateAwaitingStoredCardSubmit
		f.mu.Unlock()
		return nil
	case model.PaymentMethodBankTransfer:
		f.selection = sel
		f.state = StateAwaitingBankTransferSubmit
		f.mu.Unlock()
		return nil
	}

	// 既存のインテントがあれば再利用する
	if f.intent != nil {
		f.selection = sel
		f.state = StateAwaitingNewCardConfirmation
		f.mu.Unlock()
		return nil
	}

	f.selection = sel
	f.state = StateAwaitingNewCardIntent
	f.submitting = true
	details := f.details
	f.mu.Unlock()

	intent, err := f.deps.Broker.CreateIntent(ctx, payment.IntentRequest{
		Amount: model.AmountInput{Formatted: f.item.Amount},
		Metadata: model.IntentMetadata{
			CustomerName:  details.Name,
			CustomerEmail: details.Email,
			ItemTitle:     f.item.Title,
		},
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false

	if err != nil {
		f.selection = Selection{}
		f.state = StateSelectingDetails
		if errors.Is(err, model.ErrGatewayUnavailable) {
			f.options.remove(model.PaymentMethodNewCard)
			f.deps.Logger.WithError(err).Warn("Card payments are unavailable, removing new card from the choices")
			return err
		}
		if errors.Is(err, model.ErrInvalidAmount) {
			return err
		}
		if !errors.Is(err, model.ErrIntentCreationFailed) {
			err = fmt.Errorf("%w: %w", model.ErrIntentCreationFailed, err)
		}
		return err
	}

	f.intent = intent
	f.state = StateAwaitingNewCardConfirmation
	return nil
}

func (f *Flow) validateDetailsLocked() error {
	if strings.TrimSpace(f.details.Name) == "" {
		return fmt.Errorf("%w: name is required", model.ErrValidationFailed)
	}
	if strings.TrimSpace(f.details.Email) == "" {
		return fmt.Errorf("%w: email is required", model.ErrValidationFailed)
	}
	return nil
}

func (f *Flow) savedCardLocked(id string) (model.SavedCard, bool) {
	for _, c := range f.options.SavedCards {
		if c.ID == id {
			return c, true
		}
	}
	return model.SavedCard{}, false
}

// Submit は選択中の支払い方法で予約を確定します
// 新規カードの場合は entry でカードを確定し、サーバー側で決済完了を確認してから予約を記録します
func (f *Flow) Submit(ctx context.Context, entry CardEntry) (*Outcome, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	switch f.state {
	case StateCompleted, StateFailed:
		f.mu.Unlock()
		return nil, ErrCheckoutFinished
	case StateSelectingDetails, StateAwaitingNewCardIntent:
		f.mu.Unlock()
		return nil, ErrNoMethodSelected
	}
	if err := f.validateDetailsLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.submitting = true
	state := f.state
	details := f.details
	sel := f.selection
	intent := f.intent
	card, _ := f.savedCardLocked(sel.SavedCardID)
	bank := f.options.BankTransfer
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	booking := model.NewBooking{
		Customer: details.Name,
		Item:     f.item.Title,
		Date:     details.Date,
		Amount:   f.item.Amount,
	}

	switch state {
	case StateAwaitingStoredCardSubmit:
		booking.Status = model.BookingStatusConfirmed
		booking.PaymentMethod = model.PaymentMethodStoredCard
		message := fmt.Sprintf("Your booking is confirmed. %s charged to your %s card ending in %s.",
			f.item.Amount, card.Brand, card.Last4)
		return f.record(ctx, booking, message, nil)

	case StateAwaitingBankTransferSubmit:
		booking.Status = model.BookingStatusPending
		booking.PaymentMethod = model.PaymentMethodBankTransfer
		message := "Your booking is reserved. It will be confirmed once we receive your bank transfer."
		return f.record(ctx, booking, message, bank)
	}

	return f.submitNewCard(ctx, entry, intent, booking)
}

func (f *Flow) submitNewCard(ctx context.Context, entry CardEntry, intent *model.PaymentIntent, booking model.NewBooking) (*Outcome, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: card entry is required", model.ErrValidationFailed)
	}

	res := entry.Submit(ctx, intent)
	switch res.Kind {
	case CardFailed:
		// 同じインテントで再試行できるよう状態は変えない
		err := res.Err
		if err == nil {
			err = model.ErrValidationFailed
		}
		return nil, &CardError{Message: res.Message, Err: err}
	case CardPending:
		return nil, ErrPaymentPending
	case CardSucceeded:
	default:
		return nil, fmt.Errorf("%w: unknown card entry result", model.ErrValidationFailed)
	}

	referenceID := res.ReferenceID
	if referenceID == "" {
		referenceID = intent.ReferenceID
	}
	log := f.deps.Logger.WithField("payment_intent_id", referenceID)

	if _, err := f.deps.Broker.ConfirmIntent(ctx, referenceID); err != nil {
		if !errors.Is(err, model.ErrConfirmationFailed) {
			err = fmt.Errorf("%w: %w", model.ErrConfirmationFailed, err)
		}
		log.WithError(err).Error("Payment could not be verified, no booking recorded")
		return nil, f.fail(err)
	}

	booking.Status = model.BookingStatusConfirmed
	booking.PaymentMethod = model.PaymentMethodNewCard
	booking.PaymentIntentID = referenceID

	recorded, err := f.deps.Ledger.Create(ctx, booking)
	if err != nil {
		// 同じ決済の予約は既に記録されているため照合は不要
		if errors.Is(err, model.ErrDuplicatePaymentReference) {
			log.WithError(err).Warn("Booking for this payment is already recorded")
			return nil, f.fail(err)
		}
		if !errors.Is(err, model.ErrBookingPersistFailed) {
			err = fmt.Errorf("%w: %w", model.ErrBookingPersistFailed, err)
		}
		log.WithError(err).WithFields(logrus.Fields{
			"event":    "booking_persist_failed",
			"customer": booking.Customer,
			"item":     booking.Item,
			"amount":   booking.Amount,
		}).Error("Payment succeeded but the booking could not be recorded")
		f.recordReconciliation(ctx, booking, err)
		return nil, f.fail(err)
	}

	return f.complete(&Outcome{
		Booking: recorded,
		Method:  model.PaymentMethodNewCard,
		Message: "Payment received. Your booking is confirmed.",
	}), nil
}

// record は決済ゲートウェイを介さない支払い方法の予約を記録します
func (f *Flow) record(ctx context.Context, booking model.NewBooking, message string, bank *model.BankTransferConfig) (*Outcome, error) {
	recorded, err := f.deps.Ledger.Create(ctx, booking)
	if err != nil {
		f.deps.Logger.WithError(err).WithField("method", booking.PaymentMethod).Error("Failed to record booking")
		return nil, f.fail(err)
	}
	return f.complete(&Outcome{
		Booking:      recorded,
		Method:       booking.PaymentMethod,
		Message:      message,
		BankTransfer: bank,
	}), nil
}

func (f *Flow) recordReconciliation(ctx context.Context, booking model.NewBooking, cause error) {
	if f.deps.Reconciliations == nil {
		return
	}
	record := model.NewPersistFailedRecord(booking, cause)
	if err := f.deps.Reconciliations.Create(context.WithoutCancel(ctx), &record); err != nil {
		f.deps.Logger.WithError(err).WithFields(logrus.Fields{
			"event":             "booking_persist_failed",
			"payment_intent_id": booking.PaymentIntentID,
		}).Error("Failed to write reconciliation record")
	}
}

func (f *Flow) complete(outcome *Outcome) *Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCompleted
	f.outcome = outcome
	return outcome
}

func (f *Flow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateFailed
	f.lastErr = err
	return err
}

// Reset は日付と支払い方法、決済インテントを破棄して入力に戻ります
// 作成済みのインテントはゲートウェイ側ではキャンセルしません
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrSubmissionInProgress
	}
	f.state = StateSelectingDetails
	f.details.Date = ""
	f.selection = Selection{}
	f.intent = nil
	f.outcome = nil
	f.lastErr = nil
	return nil
}

// CardError はカード入力で失敗した場合のエラーです。Message は顧客に表示できます
type CardError struct {
	Message string
	Err     error
}

func (e *CardError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *CardError) Unwrap() error {
	return e.Err
}
