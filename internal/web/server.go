package web

import (
	"context"
	"net/http"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/idempotency"
	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/checkout"
	"github.com/mozila9822/website-VOY-sub000/internal/service/ledger"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

// SettingsService は決済プロバイダ設定の参照と更新を行います
type SettingsService interface {
	Get(ctx context.Context, provider model.Provider) (*model.PaymentSettings, error)
	Update(ctx context.Context, provider model.Provider, patch model.PaymentSettingsPatch) (*model.PaymentSettings, error)
}

// IntentService は決済インテントの作成と確認を行います
type IntentService interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*model.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, referenceID string) (*model.IntentStatus, error)
}

// BookingService は予約台帳の操作を行います
type BookingService interface {
	Create(ctx context.Context, in model.NewBooking) (*model.Booking, error)
	Get(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context) ([]model.Booking, error)
	ListByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error)
	Update(ctx context.Context, id string, patch model.BookingPatch) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	Revenue(ctx context.Context) (*ledger.Revenue, error)
}

// Services はハンドラが使うサービスです
type Services struct {
	Settings        SettingsService
	Intents         IntentService
	Bookings        BookingService
	Cards           checkout.SavedCardLister
	Reconciliations checkout.ReconciliationRecorder
}

// Options はサーバーの動作設定です
type Options struct {
	// AdminJWTSecret が空の場合、管理者向けエンドポイントの認証を行いません
	AdminJWTSecret string
	Idempotency    idempotency.Store
	Logger         *logrus.Logger
	EnableTracing  bool
	ServiceName    string
}

// Server は予約・決済APIのHTTPサーバーです
type Server struct {
	svc    Services
	opts   Options
	logger *logrus.Logger
	router *gin.Engine
}

// NewServer は新しいServerを作成します
func NewServer(svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Idempotency == nil {
		opts.Idempotency = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "voyage-booking-api"
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: opts.Logger,
		router: router,
	}

	admin := requireAdmin(opts.AdminJWTSecret)
	idem := idempotent(opts.Idempotency, opts.Logger)

	router.GET("/healthz", s.handleHealth)

	router.GET("/payment-settings/:provider", s.handleGetPaymentSettings)
	router.PUT("/payment-settings/:provider", admin, s.handleUpdatePaymentSettings)

	// レスポンスに clientSecret を含むため冪等キーによる記録は行わない
	router.POST("/create-payment-intent", s.handleCreatePaymentIntent)
	router.POST("/confirm-payment", idem, s.handleConfirmPayment)

	bookings := router.Group("/bookings")
	{
		bookings.POST("", idem, s.handleCreateBooking)
		bookings.GET("", admin, s.handleListBookings)
		bookings.GET("/:id", s.handleGetBooking)
		bookings.PUT("/:id", admin, s.handleUpdateBooking)
		bookings.DELETE("/:id", admin, s.handleDeleteBooking)
	}

	router.GET("/checkout/options", s.handleCheckoutOptions)
	router.GET("/customers/:email/cards", s.handleListSavedCards)
	router.GET("/reports/revenue", admin, s.handleRevenue)

	return s
}

// Handler はHTTPハンドラを返します。トレースが有効な場合はX-Rayのセグメントを作成します
func (s *Server) Handler() http.Handler {
	if s.opts.EnableTracing {
		return xray.Handler(xray.NewFixedSegmentNamer(s.opts.ServiceName), s.router)
	}
	return s.router
}
