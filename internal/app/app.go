package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/config"
	"github.com/mozila9822/website-VOY-sub000/internal/common/database"
	"github.com/mozila9822/website-VOY-sub000/internal/events"
	"github.com/mozila9822/website-VOY-sub000/internal/gateway"
	"github.com/mozila9822/website-VOY-sub000/internal/idempotency"
	"github.com/mozila9822/website-VOY-sub000/internal/repository"
	"github.com/mozila9822/website-VOY-sub000/internal/service/checkout"
	"github.com/mozila9822/website-VOY-sub000/internal/service/ledger"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

// App はAPIサーバーと管理CLIが共有するサービス一式です
type App struct {
	DB              *database.DB
	Registry        *payment.RegistryService
	Broker          *payment.BrokerService
	Ledger          *ledger.LedgerService
	Cards           *repository.SavedCardRepositoryImpl
	Reconciliations *repository.ReconciliationRepositoryImpl
	Idempotency     idempotency.Store

	closers []func() error
}

// New は設定に従ってDB接続とサービスを初期化します
// REDIS_URL が未設定の場合、冪等キーはプロセス内に保持します
// 予約イベントのステートマシンが未設定の場合、イベントは発行しません
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	a := &App{DB: db}
	a.closers = append(a.closers, db.Close)

	repoDB := repository.NewDB(db.DB)
	if err := repository.Migrate(ctx, repoDB); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a.Idempotency = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	if cfg.Redis.URL != "" {
		client, err := idempotency.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Idempotency = idempotency.NewRedisStore(client, idempotency.DefaultTTL)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if arn := cfg.SFN.BookingEventsStateMachine; arn != "" && !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		publisher = events.NewSFNPublisher(sfn.NewFromConfig(awsCfg), arn, logger)
	}

	settingsRepo := repository.NewPaymentSettingRepository(repoDB)
	a.Registry = payment.NewRegistryService(settingsRepo, logger)
	a.Broker = payment.NewBrokerService(a.Registry, gateway.StripeFactory(), logger)
	a.Ledger = ledger.NewLedgerService(repository.NewBookingRepository(repoDB), publisher, logger)
	a.Cards = repository.NewSavedCardRepository(repoDB)
	a.Reconciliations = repository.NewReconciliationRepository(repoDB)

	return a, nil
}

// CheckoutDependencies はチェックアウトの依存関係を返します
func (a *App) CheckoutDependencies(logger logrus.FieldLogger) checkout.Dependencies {
	return checkout.Dependencies{
		Cards:           a.Cards,
		Settings:        a.Registry,
		Broker:          a.Broker,
		Ledger:          a.Ledger,
		Reconciliations: a.Reconciliations,
		Logger:          logger,
	}
}

// Close は確保したリソースを逆順に解放します
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
