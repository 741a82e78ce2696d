package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/cache"
	"github.com/example/trades-allocator/internal/domain"
	"github.com/example/trades-allocator/internal/holdings"
	"github.com/example/trades-allocator/internal/metrics"
	"github.com/example/trades-allocator/internal/models"
)

// Service is what the HTTP layer needs from the holdings service.
type Service interface {
	SubmitFill(f models.Fill) error
	PublishSplits(table map[string]float64)
	CurrentSplits() (map[string]float64, uint64)
	ReadPositions() models.Snapshot
	ReadAccount(account string) (map[string]models.Position, bool)
	Accounts() []models.AccountSummary
}

type Server struct {
	R               *gin.Engine
	HoldingsService Service
	PositionsCache  *cache.Cache
	SplitsCache     *cache.MapCache[cache.SplitsKey, SplitsResponse]
	Logger          *zap.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SplitsResponse is the body of the splits endpoints.
type SplitsResponse struct {
	Splits  map[string]float64 `json:"splits"`
	Version uint64             `json:"version"`
}

type accountResponse struct {
	Account   string                     `json:"account"`
	Positions map[string]models.Position `json:"positions"`
}

type fillRequest struct {
	ID         string  `json:"fill_id"`
	Instrument string  `json:"instrument" binding:"required"`
	Price      float64 `json:"price" binding:"required"`
	Quantity   int64   `json:"quantity"`
	// Side is optional; when set it must agree with the sign of Quantity.
	Side string    `json:"side"`
	TS   time.Time `json:"ts"`
}

type fillAccepted struct {
	FillID string `json:"fill_id"`
}

// NewServer wires the router, service, caches, and middleware. positions may
// be nil to disable response caching; registry may be nil to skip /metrics.
func NewServer(svc Service, positions *cache.Cache, registry *prometheus.Registry, logger *zap.Logger, corsOrigin string) *Server {
	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	// CORS
	g.Use(func(cn *gin.Context) {
		origin := cn.GetHeader("Origin")
		cn.Writer.Header().Set("Vary", "Origin")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		cn.Writer.Header().Set("Access-Control-Max-Age", "86400")
		if corsOrigin == "*" {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == corsOrigin {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", corsOrigin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{
		R:               g,
		HoldingsService: svc,
		PositionsCache:  positions,
		SplitsCache:     cache.NewMapCache[cache.SplitsKey, SplitsResponse](),
		Logger:          logger,
	}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })
	if registry != nil {
		g.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	}
	g.GET("/api/positions", s.getAllPositions)
	g.GET("/api/positions/:account", s.getAccountPositions)
	g.GET("/api/accounts", s.getAccounts)
	g.GET("/api/splits", s.getSplits)
	g.PUT("/api/splits", s.putSplits)
	g.POST("/api/fills", s.postFill)

	return s
}

// --- Helpers ---

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.Logger.Error("internal_error", zap.String("where", where), zap.Error(err))
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
}

func (s *Server) cached(key cache.PositionsKey) (any, bool) {
	if s.PositionsCache == nil {
		return nil, false
	}
	return s.PositionsCache.Get(key.String())
}

func (s *Server) store(key cache.PositionsKey, v any) {
	if s.PositionsCache != nil {
		s.PositionsCache.Set(key.String(), v)
	}
}

// --- Handlers ---

func (s *Server) getAllPositions(c *gin.Context) {
	key := cache.PositionsAll()
	if rows, ok := s.cached(key); ok {
		c.JSON(http.StatusOK, rows)
		return
	}

	rows := s.HoldingsService.ReadPositions()
	s.store(key, rows)
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getAccountPositions(c *gin.Context) {
	account := strings.TrimSpace(c.Param("account"))
	if account == "" {
		s.badRequest(c, "account is required")
		return
	}

	key := cache.PositionsByAccount(account)
	if rows, ok := s.cached(key); ok {
		c.JSON(http.StatusOK, rows)
		return
	}

	positions, ok := s.HoldingsService.ReadAccount(account)
	if !ok {
		positions = map[string]models.Position{}
	}
	resp := accountResponse{Account: account, Positions: positions}
	s.store(key, resp)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.HoldingsService.Accounts())
}

func (s *Server) getSplits(c *gin.Context) {
	table, version := s.HoldingsService.CurrentSplits()
	key := cache.Splits(version)
	if resp, ok := s.SplitsCache.Get(key); ok {
		c.JSON(http.StatusOK, resp)
		return
	}
	resp := SplitsResponse{Splits: table, Version: version}
	s.SplitsCache.Clear()
	s.SplitsCache.Set(key, resp)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) putSplits(c *gin.Context) {
	var req models.SplitUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	s.HoldingsService.PublishSplits(req.Splits)
	s.SplitsCache.Clear()
	table, version := s.HoldingsService.CurrentSplits()
	c.JSON(http.StatusOK, SplitsResponse{Splits: table, Version: version})
}

func (s *Server) postFill(c *gin.Context) {
	var req fillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid body: "+err.Error())
		return
	}
	f := models.Fill{
		ID:         strings.TrimSpace(req.ID),
		Instrument: strings.TrimSpace(req.Instrument),
		Price:      req.Price,
		Quantity:   req.Quantity,
		TS:         req.TS,
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.TS.IsZero() {
		f.TS = time.Now().UTC()
	}
	if err := f.Validate(); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if req.Side != "" {
		side, ok := domain.ParseSide(req.Side)
		if !ok {
			s.badRequest(c, "unknown side "+req.Side)
			return
		}
		if side != f.Side() {
			s.badRequest(c, "side "+side.String()+" does not match quantity sign ("+f.Side().String()+")")
			return
		}
	}

	if err := s.HoldingsService.SubmitFill(f); err != nil {
		switch {
		case errors.Is(err, holdings.ErrQueueFull):
			c.JSON(http.StatusTooManyRequests, apiError{Code: "queue_full", Message: err.Error()})
		case errors.Is(err, holdings.ErrStopped):
			c.JSON(http.StatusServiceUnavailable, apiError{Code: "unavailable", Message: err.Error()})
		default:
			s.internalError(c, "SubmitFill", err)
		}
		return
	}
	c.JSON(http.StatusAccepted, fillAccepted{FillID: f.ID})
}
