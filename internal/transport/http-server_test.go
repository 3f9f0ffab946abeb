package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/notify"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/service"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/shortcut"
)

func TestCensorBody(t *testing.T) {
	b := `{
		"email": "email@email.com",
		"password": "123456789123"
	}`

	got := censorBody([]byte(b))
	assert.JSONEq(t, `{
		"email": "email@email.com",
		"password": "$censored"
	}`, string(got))
}

func TestCensorBody_NoPassword(t *testing.T) {
	assert.Equal(t, `{"email":"a@b.c"}`, string(censorBody([]byte(`{"email":"a@b.c"}`))))
	assert.Equal(t, `not json`, string(censorBody([]byte(`not json`))))
}

func TestRequestLogger_OmitsQuery(t *testing.T) {
	out := bytes.Buffer{}
	e := echo.New()
	e.Use(requestLogger(&out))
	e.GET("/resources/events", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/resources/events?token=secret-token&sort=nameAsc", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	line := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line), out.String())
	assert.Equal(t, "/resources/events", line["path"])
	assert.EqualValues(t, http.StatusOK, line["status"])
	assert.NotContains(t, out.String(), "secret-token")
}

func TestIsPublic(t *testing.T) {
	assert.True(t, isPublic("/ping"))
	assert.True(t, isPublic("/auth/login"))
	assert.True(t, isPublic("/auth/oauth/github/callback"))
	assert.True(t, isPublic("/shortcuts/dispatch"))
	assert.False(t, isPublic("/auth/logout"))
	assert.False(t, isPublic("/resources"))
	assert.False(t, isPublic("/pingx"))
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	return newTestServerWithConfig(t, &config.Config{
		Env:            config.EnvProduction,
		BcryptCost:     bcrypt.MinCost,
		ExportBasename: "resources",
	})
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *HTTPServer {
	t.Helper()

	gdb, err := db.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), logger.Discard)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	l := zap.NewNop().Sugar()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	snapshots := service.NewSnapshots(gdb)
	h := hub.New(snapshots, l, collector)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = sqlDB.Close()
	})

	resources := service.NewResources(gdb, snapshots, h, notify.NewLocal(h), collector, l)
	auth := service.NewAuth(gdb, cfg, l)
	service.CloseSubscriptionsOnSignOut(auth, h)

	return New(Deps{
		Config:     cfg,
		Auth:       auth,
		Resources:  resources,
		Onboarding: service.NewOnboarding(gdb, resources, l),
		Transfer:   service.NewTransfer(resources, collector, l),
		Hub:        h,
		Metrics:    collector,
		Logger:     l,
	})
}

func do(t *testing.T, s *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func register(t *testing.T, s *HTTPServer, email string) SessionResp {
	t.Helper()

	rec := do(t, s, http.MethodPost, "/auth/register", "", `{"email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := SessionResp{}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	resp := register(t, s, "a@example.com")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/resources", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/resources", "bogus", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/resources", resp.Token, "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/resources?token="+resp.Token, "", "").Code)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	resp := register(t, s, "Someone@Example.com")
	assert.Equal(t, service.StateNewProfile, resp.State)
	assert.True(t, resp.NeedsWelcome)
	require.NotNil(t, resp.Session)

	rec := do(t, s, http.MethodPost, "/auth/register", "", `{"email":"someone@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := map[string]string{}
	decode(t, rec, &body)
	assert.Equal(t, string(service.CodeEmailInUse), body["code"])

	rec = do(t, s, http.MethodPost, "/auth/register", "", `{"email":"weak@example.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/login", "", `{"email":"someone@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/auth/login", "", `{"email":"someone@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	login := SessionResp{}
	decode(t, rec, &login)
	assert.NotEqual(t, resp.Token, login.Token)
	assert.Equal(t, service.StateReturning, login.State)

	// the old token was rotated out
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/session", resp.Token, "").Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	resp := register(t, s, "a@example.com")

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/auth/logout", resp.Token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/session", resp.Token, "").Code)
}

func TestOnboarding(t *testing.T) {
	s := newTestServer(t)
	resp := register(t, s, "a@example.com")

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/onboarding/tour", resp.Token, "").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/onboarding/skip", resp.Token, "").Code)

	rec := do(t, s, http.MethodGet, "/session", resp.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := SessionResp{}
	decode(t, rec, &sess)
	assert.Equal(t, service.StateOnboarded, sess.State)
	assert.False(t, sess.NeedsWelcome)
	assert.Empty(t, sess.Token)

	list := []map[string]interface{}{}
	decode(t, do(t, s, http.MethodGet, "/resources", resp.Token, ""), &list)
	assert.Len(t, list, len(service.SampleResources()))
}

func TestOAuthStart_UnknownProvider(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/auth/oauth/myspace", "", "").Code)
}

func TestShortcuts(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/shortcuts", nil)
	req.Header.Set("Sec-CH-UA-Platform", `"macOS"`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := []ShortcutResp{}
	decode(t, rec, &resp)
	require.Len(t, resp, 3)
	assert.Equal(t, "⌘ + K", resp[0].Label)
	assert.Equal(t, "Escape", resp[2].Label)
}

func TestShortcutDispatch(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		body    string
		action  shortcut.Action
		handled bool
	}{
		{"ctrl k", `{"key":"k","ctrl":true,"target":{"tag":"BODY"}}`, shortcut.ActionFocusSearch, true},
		{"meta n", `{"key":"N","meta":true}`, shortcut.ActionOpenAddForm, true},
		{"typing in input", `{"key":"k","ctrl":true,"target":{"tag":"input"}}`, "", false},
		{"escape in textarea", `{"key":"Escape","target":{"tag":"TEXTAREA"}}`, shortcut.ActionCloseModal, true},
		{"plain key", `{"key":"k"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/shortcuts/dispatch", "", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := ShortcutDispatchResp{}
			decode(t, rec, &resp)
			assert.Equal(t, tt.action, resp.Action)
			assert.Equal(t, tt.handled, resp.Handled)
		})
	}

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/shortcuts/dispatch", "", `{"ctrl":true}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp := register(t, s, "a@example.com")
	do(t, s, http.MethodPost, "/resources", resp.Token, validResourceBody("one"))

	rec := do(t, s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "linkshelf_")
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServerWithConfig(t, &config.Config{
		Env:               config.EnvProduction,
		BcryptCost:        bcrypt.MinCost,
		AuthRatePerMinute: 1,
		AuthBurst:         2,
	})

	body := `{"email":"nobody@example.com","password":"secret1"}`
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/auth/login", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/auth/login", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/auth/login", "", body).Code)

	// other routes are not limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/ping", "", "").Code)
}

func TestRouteNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := register(t, s, "a@example.com")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nowhere", resp.Token, "").Code)
}
