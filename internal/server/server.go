// Package server exposes picklist generation and preference learning over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/logging"
	"picklist/internal/preference"
)

const maxItemsPerRequest = 1000

type Generator interface {
	Generate(ctx context.Context, userID string, items []internal.OrderItem) internal.Picklist
}

type Learner interface {
	RecordOverride(ctx context.Context, o preference.Override) (preference.Recorded, error)
	RecordSupplierChoices(ctx context.Context, choices []internal.SupplierChoice) error
	Cleanup(ctx context.Context, days int) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	generator Generator
	learner   Learner
	db        Pinger
	logger    *zap.Logger
	engine    *gin.Engine
}

type picklistRequest struct {
	UserID string        `json:"userId"`
	Items  []requestItem `json:"items"`
}

type requestItem struct {
	Text     string `json:"text"`
	Quantity int    `json:"quantity"`
}

type overrideResponse struct {
	Recorded bool                `json:"recorded"`
	Warning  string              `json:"warning,omitempty"`
	Result   *preference.Recorded `json:"result,omitempty"`
}

type batchOverrideRequest struct {
	Choices []internal.SupplierChoice `json:"choices"`
}

func New(generator Generator, learner Learner, db Pinger, logger *zap.Logger) *Server {
	s := &Server{
		generator: generator,
		learner:   learner,
		db:        db,
		logger:    logging.OrNop(logger),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/picklists", s.createPicklist)
	api.POST("/overrides", s.recordOverride)
	api.POST("/overrides/batch", s.recordOverrides)
	api.POST("/preferences/cleanup", s.cleanup)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createPicklist(c *gin.Context) {
	var req picklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		badRequest(c, "items must not be empty")
		return
	}
	if len(req.Items) > maxItemsPerRequest {
		badRequest(c, "too many items")
		return
	}

	items := make([]internal.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		if strings.TrimSpace(it.Text) == "" {
			badRequest(c, "item "+strconv.Itoa(i+1)+": text is required")
			return
		}
		if it.Quantity <= 0 {
			badRequest(c, "item "+strconv.Itoa(i+1)+": quantity must be positive")
			return
		}
		items = append(items, internal.OrderItem{
			LineNo:   i + 1,
			Source:   internal.SourceAPI,
			RawText:  it.Text,
			Quantity: it.Quantity,
		})
	}

	c.JSON(http.StatusOK, s.generator.Generate(c.Request.Context(), req.UserID, items))
}

func (s *Server) recordOverride(c *gin.Context) {
	var o preference.Override
	if err := c.ShouldBindJSON(&o); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.learner.RecordOverride(c.Request.Context(), o)
	if err != nil {
		if isInputError(err) {
			badRequest(c, err.Error())
			return
		}
		s.logger.Warn("override not recorded", zap.String("item", o.OriginalItem), zap.Error(err))
		c.JSON(http.StatusOK, overrideResponse{Recorded: false, Warning: "preference not recorded: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, overrideResponse{Recorded: true, Result: &res})
}

func (s *Server) recordOverrides(c *gin.Context) {
	var req batchOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}

	err := s.learner.RecordSupplierChoices(c.Request.Context(), req.Choices)
	if err != nil {
		if isInputError(err) {
			badRequest(c, err.Error())
			return
		}
		s.logger.Warn("override batch not recorded", zap.Int("choices", len(req.Choices)), zap.Error(err))
		c.JSON(http.StatusOK, overrideResponse{Recorded: false, Warning: "preferences not recorded: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true, "count": len(req.Choices)})
}

func (s *Server) cleanup(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days must be an integer")
			return
		}
		days = v
	}

	removed, err := s.learner.Cleanup(c.Request.Context(), days)
	if err != nil {
		s.logger.Error("preference cleanup failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func isInputError(err error) bool {
	return errors.Is(err, common.ErrInvalidOrderItem) || errors.Is(err, preference.ErrUnknownSupplier)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
