package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"SalesCast/internal/domain/models"
	domrepo "SalesCast/internal/domain/repository"
	"SalesCast/internal/domain/service"
	"SalesCast/internal/services/forecast"
	"SalesCast/internal/usecase"
	xhttp "SalesCast/pkg/http"
	xlogger "SalesCast/pkg/logger"
)

// HealthChecker reports whether the backing sales source is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ForecastEchoHandler serves the forecasting API.
type ForecastEchoHandler struct {
	logger  *xlogger.Logger
	svc     service.SalesForecaster
	health  HealthChecker
	limiter echo.MiddlewareFunc
}

// NewForecastEchoHandler builds the handler. health and limiter may be nil.
func NewForecastEchoHandler(logger *xlogger.Logger, svc service.SalesForecaster, health HealthChecker, limiter echo.MiddlewareFunc) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastEchoHandler{logger: logger, svc: svc, health: health, limiter: limiter}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, h.limiter)
	}
	g := e.Group("/api")
	g.GET("/forecast", h.Forecast, mw...)
	g.POST("/sales-forecast", h.Forecast, mw...)
	g.GET("/sales/monthly", h.MonthlySales)
	g.GET("/products/top", h.TopProducts)
	g.GET("/highest-selling-products", h.TopProducts)
}

// Forecast handles GET /api/forecast and POST /api/sales-forecast.
func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.svc.Forecast(c.Request().Context(), req)
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("forecast usecase error",
				xlogger.String("code", appErr.Code),
				xlogger.Error(err))
		} else {
			h.logger.Warn("forecast request rejected",
				xlogger.String("code", appErr.Code),
				xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	if report.Cached {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
	return xhttp.SuccessResponse(c, report)
}

// MonthlySales handles GET /api/sales/monthly.
func (h *ForecastEchoHandler) MonthlySales(c echo.Context) error {
	req := &models.MonthlySalesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, err := h.svc.MonthlyHistory(c.Request().Context(), domrepo.SalesQuery{FromYear: req.FromYear})
	if err != nil {
		h.logger.Error("monthly sales usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, series, int64(len(series)))
}

// TopProducts handles GET /api/products/top and its legacy alias
// /api/highest-selling-products.
func (h *ForecastEchoHandler) TopProducts(c echo.Context) error {
	req := &models.ProductDemandRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.svc.ProductDemand(c.Request().Context(), req.Year, req.Month, req.Limit)
	if err != nil {
		appErr := toAppError(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("product demand usecase error", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, report)
}

// Health handles GET /healthz.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("sales source unavailable").WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, forecast.ErrEmptySeries):
		return xhttp.NewAppError("ERR_EMPTY_SERIES", "", "no usable sales history", http.StatusNotFound).WithError(err)
	case errors.Is(err, forecast.ErrInvalidConfiguration):
		return xhttp.NewAppError("ERR_INVALID_CONFIGURATION", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, forecast.ErrCancelled):
		return xhttp.NewAppError("ERR_CANCELLED", "", "forecast cancelled or timed out", http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, forecast.ErrTrainingFailure):
		appErr = xhttp.NewAppError("ERR_TRAINING_FAILURE", "", "model training failed", http.StatusInternalServerError).WithError(err)
		var pe *forecast.PipelineError
		if errors.As(err, &pe) && pe.Segment != "" {
			appErr.WithParam("segment", pe.Segment)
		}
		return appErr
	case errors.Is(err, usecase.ErrNoSales):
		return xhttp.NewAppError("ERR_NO_SALES", "", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, usecase.ErrSource):
		return xhttp.NewAppError("ERR_SOURCE", "", "sales source unavailable", http.StatusBadGateway).WithError(err)
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
}
