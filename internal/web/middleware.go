package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	contextAdminSubject = "adminSubject"
)

// requestLogger はリクエストごとにアクセスログを出力します
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.FullPath(),
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}

// AdminClaims は管理者トークンのクレームです
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// requireAdmin は role=admin のHS256トークンを要求します
// secret が空の場合は認証を行いません
func requireAdmin(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing"})
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header"})
			return
		}

		claims := &AdminClaims{}
		_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admins only"})
			return
		}

		c.Set(contextAdminSubject, claims.Subject)
		c.Next()
	}
}

// captureWriter はレスポンスボディを記録するためのResponseWriterです
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent は Idempotency-Key ヘッダー付きのリクエストのレスポンスを記録し、再送時は記録したレスポンスを返します
// 同じキーのリクエストが処理中の場合は400を返します。5xxのレスポンスとpanicは記録せず再試行を許可します
func idempotent(store idempotency.Store, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if header == "" {
			c.Next()
			return
		}
		key := c.Request.Method + " " + c.FullPath() + " " + header
		ctx := c.Request.Context()

		cached, err := store.Claim(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			// ストアが使えない場合は冪等性なしで処理を続ける
			logger.WithError(err).Warn("Idempotency store unavailable")
			c.Next()
			return
		case cached != nil:
			c.Header(ReplayedHeader, "true")
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		// 記録と解放はクライアントの切断に関係なく行う
		storeCtx := context.WithoutCancel(ctx)
		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		defer func() {
			if r := recover(); r != nil {
				if err := store.Release(storeCtx, key); err != nil {
					logger.WithError(err).Warn("Failed to release idempotency key")
				}
				panic(r)
			}
		}()
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Release(storeCtx, key); err != nil {
				logger.WithError(err).Warn("Failed to release idempotency key")
			}
			return
		}

		if err := store.Complete(storeCtx, key, idempotency.Response{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}); err != nil {
			logger.WithError(err).Warn("Failed to record idempotent response")
		}
	}
}
