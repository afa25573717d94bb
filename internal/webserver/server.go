package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/talkincode/wacrm/config"
	"go.uber.org/zap"
)

// AppContextKey is the echo context key holding the application context.
const AppContextKey = "appctx"

// Server is the admin http server. Routes are mounted at the root; when a
// jwt secret is configured every route except /health requires a bearer
// token.
type Server struct {
	root *echo.Echo
	api  *echo.Group
	addr string
}

func New(appCtx interface{}, cfg config.WebConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now()})
	})

	api := e.Group("")
	if cfg.JwtSecret != "" {
		api.Use(echojwt.WithConfig(echojwt.Config{
			SigningKey: []byte(cfg.JwtSecret),
		}))
	}
	return &Server{
		root: e,
		api:  api,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				zap.L().Warn("webserver: request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			zap.L().Debug("webserver: request", fields...)
			return nil
		},
	})
}

func (s *Server) ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.GET(path, h, m...)
}

func (s *Server) ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.POST(path, h, m...)
}

func (s *Server) ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	s.api.DELETE(path, h, m...)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.root
}

// Start blocks serving http until Shutdown.
func (s *Server) Start() error {
	zap.L().Info("webserver: listening", zap.String("addr", s.addr))
	if err := s.root.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}
