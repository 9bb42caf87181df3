package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
)

const (
	// multipart framing on top of the largest accepted spreadsheet
	multipartOverhead  = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

type healthChecker interface {
	Health(ctx context.Context) (*domain.ServiceHealth, error)
}

type RouterConfig struct {
	AllowOrigins []string
	// MaxUploadBytes bounds request bodies; zero leaves them unbounded.
	MaxUploadBytes int64
	// Auth guards /api/v1. Nil mounts the group without it.
	Auth echo.MiddlewareFunc
	// Backend is reported by the public /health route when set.
	Backend healthChecker
}

// NewRouter builds the echo instance and the /api/v1 group every dashboard
// route hangs off.
func NewRouter(cfg RouterConfig) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true

	allowCredentials := true
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	registerLogging(e)

	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderAuthorization,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderOrigin,
			echo.HeaderXRequestedWith,
		},
		AllowCredentials: allowCredentials,
	}))
	if cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes+multipartOverhead)))
	}

	e.GET("/health", liveness(cfg.Backend))

	var api *echo.Group
	if cfg.Auth != nil {
		api = e.Group("/api/v1", cfg.Auth)
	} else {
		api = e.Group("/api/v1")
	}
	return e, api
}

// liveness always answers 200 while the process serves; the ETL backend's
// state is reported alongside for load balancers and dashboards.
func liveness(backend healthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := echo.Map{"ok": true, "service": "excelchat-api"}
		if backend == nil {
			return c.JSON(http.StatusOK, body)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()
		if _, err := backend.Health(ctx); err != nil {
			body["etl"] = "unreachable"
		} else {
			body["etl"] = "reachable"
		}
		return c.JSON(http.StatusOK, body)
	}
}
