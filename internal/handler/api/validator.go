// Package api exposes the validation pipeline over HTTP.
package api

import (
	"strings"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/service/ratelimit"
	"TrendGate/internal/validator"
	xhttp "TrendGate/pkg/http"
	xlogger "TrendGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ValidatorHandler implements Echo-based HTTP handlers over the
// orchestrator.
type ValidatorHandler struct {
	logger *xlogger.Logger
	orch   *validator.Orchestrator
	rl     *ratelimit.Limiter

	rateCapacity float64
	ratePerSec   float64
}

func NewValidatorHandler(logger *xlogger.Logger, orch *validator.Orchestrator) *ValidatorHandler {
	return &ValidatorHandler{
		logger:       logger,
		orch:         orch,
		rl:           ratelimit.New(),
		rateCapacity: 20,
		ratePerSec:   10,
	}
}

func (h *ValidatorHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/signals/validate", h.Validate)
	g.POST("/signals/validate/batch", h.ValidateBatch)
	g.POST("/signals/quick-check", h.QuickCheck)
	g.GET("/trend/:symbol", h.TrendAlignment)
	g.POST("/outcomes", h.Outcome)
	g.GET("/subscriptions", h.Subscriptions)
	g.POST("/subscriptions", h.Subscribe)
	g.DELETE("/subscriptions", h.Unsubscribe)
}

type validateRequest struct {
	ID        string                `json:"id" validate:"required"`
	Symbol    string                `json:"symbol" validate:"required"`
	Type      string                `json:"type" validate:"required"`
	Strength  float64               `json:"strength"`
	Timestamp time.Time             `json:"timestamp"`
	Metadata  models.SignalMetadata `json:"metadata"`
}

func (r *validateRequest) signal() *models.Signal {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &models.Signal{
		ID:        r.ID,
		Symbol:    strings.ToUpper(r.Symbol),
		Type:      models.SignalType(strings.ToUpper(r.Type)),
		Strength:  r.Strength,
		Timestamp: ts,
		Metadata:  r.Metadata,
	}
}

func (h *ValidatorHandler) Validate(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":validate", h.rateCapacity, h.ratePerSec) {
		return xhttp.DataResponse(c, 429, "rate limited")
	}

	req := &validateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	d := h.orch.ValidateSignal(c.Request().Context(), req.signal())
	return xhttp.SuccessResponse(c, d)
}

type batchRequest struct {
	Signals []validateRequest `json:"signals" validate:"required,min=1,max=100,dive"`
}

func (h *ValidatorHandler) ValidateBatch(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":batch", h.rateCapacity, h.ratePerSec) {
		return xhttp.DataResponse(c, 429, "rate limited")
	}

	req := &batchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	signals := make([]*models.Signal, len(req.Signals))
	for i := range req.Signals {
		signals[i] = req.Signals[i].signal()
	}

	res := h.orch.BatchValidate(c.Request().Context(), signals)
	return xhttp.SuccessResponse(c, res)
}

// QuickCheck runs structural validation only; no market data is fetched.
func (h *ValidatorHandler) QuickCheck(c echo.Context) error {
	req := &validateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ok, reason := h.orch.QuickValidate(req.signal())
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"valid":  ok,
		"reason": reason,
	})
}

func (h *ValidatorHandler) TrendAlignment(c echo.Context) error {
	symbol := strings.ToUpper(c.Param("symbol"))
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}

	var tfs []models.Timeframe
	if raw := c.QueryParam("timeframes"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			tfs = append(tfs, models.Timeframe(strings.TrimSpace(s)))
		}
	}

	consensus, err := h.orch.GetTrendAlignment(c.Request().Context(), symbol, tfs...)
	if err != nil {
		h.logger.Error("trend alignment failed",
			xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, consensus)
}

type outcomeRequest struct {
	SignalID   string  `json:"signal_id" validate:"required"`
	Successful bool    `json:"successful"`
	PnL        float64 `json:"pnl"`
}

func (h *ValidatorHandler) Outcome(c echo.Context) error {
	req := &outcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.orch.UpdateSignalOutcome(c.Request().Context(), req.SignalID, req.Successful, req.PnL); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "recorded"})
}

type subscriptionRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
}

func (r *subscriptionRequest) upper() []string {
	out := make([]string, len(r.Symbols))
	for i, s := range r.Symbols {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func (h *ValidatorHandler) Subscriptions(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbols": h.orch.Subscribed(),
	})
}

func (h *ValidatorHandler) Subscribe(c echo.Context) error {
	req := &subscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.orch.Subscribe(req.upper())
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbols": h.orch.Subscribed(),
	})
}

func (h *ValidatorHandler) Unsubscribe(c echo.Context) error {
	req := &subscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.orch.Unsubscribe(req.upper())
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbols": h.orch.Subscribed(),
	})
}

func (h *ValidatorHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

var _ xhttp.Handler = (*ValidatorHandler)(nil)
