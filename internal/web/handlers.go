package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/model"
	"github.com/mozila9822/website-VOY-sub000/internal/service/checkout"
	"github.com/mozila9822/website-VOY-sub000/internal/service/payment"
)

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type confirmPaymentResponse struct {
	Success       bool                `json:"success"`
	PaymentIntent *model.IntentStatus `json:"paymentIntent,omitempty"`
	Error         string              `json:"error,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGetPaymentSettings(c *gin.Context) {
	provider, err := model.ParseProvider(c.Param("provider"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	settings, err := s.svc.Settings.Get(c.Request.Context(), provider)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings.Public())
}

func (s *Server) handleUpdatePaymentSettings(c *gin.Context) {
	provider, err := model.ParseProvider(c.Param("provider"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	var patch model.PaymentSettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	settings, err := s.svc.Settings.Update(c.Request.Context(), provider, patch)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"provider": provider,
		"enabled":  settings.Enabled,
		"admin":    c.GetString(contextAdminSubject),
	}).Info("Payment settings updated")
	c.JSON(http.StatusOK, settings.Admin())
}

func (s *Server) handleCreatePaymentIntent(c *gin.Context) {
	var req payment.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	intent, err := s.svc.Intents.CreateIntent(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) handleConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	status, err := s.svc.Intents.ConfirmIntent(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		var notCompleted *model.PaymentNotCompletedError
		if errors.As(err, &notCompleted) {
			c.JSON(http.StatusBadRequest, confirmPaymentResponse{Error: err.Error()})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, confirmPaymentResponse{Success: true, PaymentIntent: status})
}

func (s *Server) handleCreateBooking(c *gin.Context) {
	var in model.NewBooking
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	ctx := c.Request.Context()
	booking, err := s.svc.Bookings.Create(ctx, in)
	if err != nil {
		if errors.Is(err, model.ErrBookingPersistFailed) && in.PaymentIntentID != "" {
			s.recordPersistFailure(ctx, in, err)
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// recordPersistFailure は支払い済みで予約が記録できなかった取引を照合用に記録します
func (s *Server) recordPersistFailure(ctx context.Context, in model.NewBooking, cause error) {
	log := s.logger.WithError(cause).WithFields(logrus.Fields{
		"event":             string(model.ReconciliationReasonPersistFailed),
		"payment_intent_id": in.PaymentIntentID,
		"customer":          in.Customer,
		"amount":            in.Amount,
	})
	log.Error("Payment succeeded but booking could not be recorded")

	if s.svc.Reconciliations == nil {
		return
	}
	record := model.NewPersistFailedRecord(in, cause)
	if err := s.svc.Reconciliations.Create(context.WithoutCancel(ctx), &record); err != nil {
		log.WithField("reconciliation_error", err.Error()).Error("Failed to write reconciliation record")
	}
}

func (s *Server) handleListBookings(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		bookings []model.Booking
		err      error
	)
	if q := c.Query("status"); q != "" {
		status, perr := model.ParseBookingStatus(q)
		if perr != nil {
			s.writeError(c, perr)
			return
		}
		bookings, err = s.svc.Bookings.ListByStatus(ctx, status)
	} else {
		bookings, err = s.svc.Bookings.List(ctx)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

func (s *Server) handleGetBooking(c *gin.Context) {
	booking, err := s.svc.Bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) handleUpdateBooking(c *gin.Context) {
	var patch model.BookingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	booking, err := s.svc.Bookings.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) handleDeleteBooking(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.Bookings.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// handleCheckoutOptions は顧客に提示する支払い方法の選択肢を返します
// 選択肢が空の場合も200でメッセージを返します
func (s *Server) handleCheckoutOptions(c *gin.Context) {
	flow := checkout.NewFlow(checkout.Dependencies{
		Cards:           s.svc.Cards,
		Settings:        s.svc.Settings,
		Broker:          s.svc.Intents,
		Ledger:          s.svc.Bookings,
		Reconciliations: s.svc.Reconciliations,
		Logger:          s.logger,
	}, checkout.Item{})

	opts, err := flow.Open(c.Request.Context(), checkout.Details{Email: c.Query("email")})
	if err != nil && !errors.Is(err, model.ErrNoPaymentMethods) {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (s *Server) handleListSavedCards(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		s.writeError(c, model.ErrValidationFailed)
		return
	}

	cards, err := s.svc.Cards.ListByCustomer(c.Request.Context(), email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cards == nil {
		cards = []model.SavedCard{}
	}
	c.JSON(http.StatusOK, cards)
}

func (s *Server) handleRevenue(c *gin.Context) {
	revenue, err := s.svc.Bookings.Revenue(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revenue)
}

func invalidBody(err error) error {
	return errors.Join(model.ErrValidationFailed, err)
}

// statusFor はエラーをHTTPステータスに対応付けます
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrValidationFailed),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrDuplicatePaymentReference),
		errors.Is(err, model.ErrCardDeclined):
		return http.StatusBadRequest
	}

	var notCompleted *model.PaymentNotCompletedError
	if errors.As(err, &notCompleted) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// 内部エラーの詳細は返さない
		msg = "internal server error"
		if errors.Is(err, model.ErrBookingPersistFailed) {
			msg = model.ErrBookingPersistFailed.Error()
		}
	}
	c.JSON(status, gin.H{"error": msg})
}
