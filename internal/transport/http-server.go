package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/codec"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/service"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/shortcut"
)

// accessLogFormat is echo's default format with the path in place of the
// full URI, so the ?token= of event streams never reaches the log.
const accessLogFormat = `{"time":"${time_rfc3339_nano}","id":"${id}","remote_ip":"${remote_ip}",` +
	`"host":"${host}","method":"${method}","path":"${path}","user_agent":"${user_agent}",` +
	`"status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}",` +
	`"bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n"

const (
	tokenHeader = "X-Token"
	tokenQuery  = "token"
	userKey     = "user"
	censored    = "$censored"
)

var publicPrefixes = []string{"/ping", "/auth/register", "/auth/login", "/auth/oauth/", "/shortcuts", "/shortcuts/dispatch", "/metrics"}

type (
	CustomValidator struct {
		validator *validator.Validate
	}

	Deps struct {
		fx.In

		Config     *config.Config
		Auth       *service.Auth
		Resources  *service.Resources
		Onboarding *service.Onboarding
		Transfer   *service.Transfer
		Hub        *hub.Hub
		Metrics    *metrics.Collector
		Logger     *zap.SugaredLogger
	}

	HTTPServer struct {
		echo        *echo.Echo
		cfg         *config.Config
		auth        *service.Auth
		resources   *service.Resources
		onboarding  *service.Onboarding
		transfer    *service.Transfer
		hub         *hub.Hub
		shortcuts   *shortcut.Dispatcher
		importLimit int64
		logger      *zap.SugaredLogger
	}
)

func NewHTTPServer(lc fx.Lifecycle, deps Deps) *HTTPServer {
	instance := New(deps)
	e := instance.echo
	cfg := deps.Config

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return instance.Shutdown(ctx)
		},
	})

	return instance
}

// New builds the server and its routes without starting it.
func New(deps Deps) *HTTPServer {
	e := echo.New()
	e.HideBanner = true

	instance := HTTPServer{
		echo:        e,
		cfg:         deps.Config,
		auth:        deps.Auth,
		resources:   deps.Resources,
		onboarding:  deps.Onboarding,
		transfer:    deps.Transfer,
		hub:         deps.Hub,
		shortcuts:   shortcut.NewDispatcher(shortcut.Default()),
		importLimit: maxImportSize,
		logger:      deps.Logger,
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, tokenHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))
	e.Use(requestLogger(nil))
	e.Use(middleware.Recover())
	if deps.Config.Env != config.EnvProduction {
		e.Use(middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
			Skipper: func(c echo.Context) bool {
				switch c.Path() {
				case "/resources/events", "/resources/export", "/resources/import", "/metrics":
					return true
				}
				return false
			},
			Handler: func(c echo.Context, reqBody, _ []byte) {
				if len(reqBody) != 0 {
					instance.logger.Debugw("request body", "path", c.Path(), "body", string(censorBody(reqBody)))
				}
			},
		}))
	}

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: service.NewValidator()}

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	e.GET("/shortcuts", instance.Shortcuts)
	e.POST("/shortcuts/dispatch", instance.ShortcutDispatch)

	authG := e.Group("/auth")
	if cfg := deps.Config; cfg.AuthRatePerMinute > 0 {
		authG.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool { return c.Path() == "/auth/logout" },
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(cfg.AuthRatePerMinute) / 60),
				Burst:     cfg.AuthBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"code":    "too-many-requests",
					"message": "Too many attempts. Please try again later.",
				})
			},
		}))
	}
	authG.POST("/register", instance.Register)
	authG.POST("/login", instance.Login)
	authG.GET("/oauth/:provider", instance.OAuthStart)
	authG.POST("/oauth/:provider/callback", instance.OAuthCallback)
	authG.POST("/logout", instance.Logout)

	e.GET("/session", instance.Session)

	onboardingG := e.Group("/onboarding")
	onboardingG.POST("/tour", instance.TakeTour)
	onboardingG.POST("/skip", instance.SkipTour)

	resourceG := e.Group("/resources")
	resourceG.GET("", instance.ResourceList)
	resourceG.GET("/stats", instance.ResourceStats)
	resourceG.GET("/events", instance.ResourceEvents)
	resourceG.GET("/export", instance.ResourceExport)
	resourceG.POST("/import", instance.ResourceImport)
	resourceG.POST("", instance.ResourceCreate)
	resourceG.PATCH("/:id", instance.ResourceUpdate)
	resourceG.DELETE("/:id", instance.ResourceDelete)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	return &instance
}

func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Shutdown ends open event streams through the hub, then drains the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server.")
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warnw("drain snapshot hub", "error", err)
	}
	return s.echo.Shutdown(ctx)
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if isPublic(c.Request().URL.Path) {
			return next(c)
		}

		// EventSource cannot send headers, so the stream also takes ?token=
		token := c.Request().Header.Get(tokenHeader)
		if token == "" {
			token = c.QueryParam(tokenQuery)
		}
		if token == "" {
			return c.NoContent(http.StatusUnauthorized)
		}

		user, err := s.auth.Authenticate(c.Request().Context(), token)
		if err != nil {
			if !errors.Is(err, service.ErrUnauthorized) {
				s.logger.Errorw("authenticate", "error", err)
			}
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set(userKey, user)
		return next(c)
	}
}

// requestLogger writes the access log to out, or to stdout when out is nil.
func requestLogger(out io.Writer) echo.MiddlewareFunc {
	return middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: accessLogFormat,
		Output: out,
	})
}

func isPublic(path string) bool {
	for _, prefix := range publicPrefixes {
		if path == prefix || (strings.HasSuffix(prefix, "/") && strings.HasPrefix(path, prefix)) {
			return true
		}
	}
	return false
}

// httpError maps a domain error onto a response. fallback is the message
// shown when nothing more specific applies.
func (s *HTTPServer) httpError(c echo.Context, err error, fallback string) error {
	var (
		invalid   *service.InvalidResourceError
		importErr *codec.ImportError
	)
	switch {
	case errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
	case errors.As(err, &importErr):
		return echo.NewHTTPError(http.StatusBadRequest, importErr.Message)
	case errors.Is(err, service.ErrResourceNotFound), errors.Is(err, service.ErrProfileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyOnboarded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, hub.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Server is shutting down")
	}

	s.logger.Errorw("request failed", "path", c.Path(), "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}

// authError maps identity errors onto responses carrying the user-facing
// message.
func (s *HTTPServer) authError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch service.Code(err) {
	case service.CodeUserNotFound, service.CodeWrongPassword:
		status = http.StatusUnauthorized
	case service.CodeEmailInUse:
		status = http.StatusConflict
	case service.CodeWeakPassword, service.CodePopupClosed:
		status = http.StatusBadRequest
	default:
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrOAuthState):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOAuthEmailUnverified):
			return echo.NewHTTPError(http.StatusForbidden, "Verify an email address with the provider first")
		}
		s.logger.Errorw("auth failed", "path", c.Path(), "error", err)
	}

	return c.JSON(status, map[string]string{
		"code":    string(service.Code(err)),
		"message": service.Message(err),
	})
}

// censorBody hides passwords in a JSON request body before it is logged.
// Anything that is not a JSON object is returned as is.
func censorBody(body []byte) []byte {
	fields := map[string]interface{}{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return body
	}
	if _, ok := fields["password"]; !ok {
		return body
	}
	fields["password"] = censored

	out, err := json.Marshal(fields)
	if err != nil {
		return body
	}
	return out
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get(userKey).(*db.User)
	if !ok || user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}
