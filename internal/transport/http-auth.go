package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/service"
)

type (
	UserReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password"`
	}

	OAuthCallbackReq struct {
		Code  string `json:"code" form:"code" query:"code"`
		State string `json:"state" form:"state" query:"state"`
		Error string `json:"error" form:"error" query:"error"`
	}

	SessionResp struct {
		Token        string                 `json:"token,omitempty"`
		Session      *models.Session        `json:"session"`
		Profile      *models.UserProfile    `json:"profile,omitempty"`
		State        service.BootstrapState `json:"state"`
		NeedsWelcome bool                   `json:"needsWelcome"`
	}
)

func (s *HTTPServer) Register(c echo.Context) error {
	u := UserReq{}
	if err := BindAndValidate(c, &u); err != nil {
		return err
	}

	user, err := s.auth.SignUp(c.Request().Context(), u.Email, u.Password)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(http.StatusOK, s.sessionResp(c, user, true))
}

func (s *HTTPServer) Login(c echo.Context) error {
	u := UserReq{}
	if err := BindAndValidate(c, &u); err != nil {
		return err
	}

	user, err := s.auth.SignIn(c.Request().Context(), u.Email, u.Password)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(http.StatusOK, s.sessionResp(c, user, true))
}

func (s *HTTPServer) OAuthStart(c echo.Context) error {
	provider, err := GetParam(c, "provider")
	if err != nil {
		return err
	}

	url, err := s.auth.OAuthConsentURL(provider)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (s *HTTPServer) OAuthCallback(c echo.Context) error {
	provider, err := GetParam(c, "provider")
	if err != nil {
		return err
	}

	req := OAuthCallbackReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.auth.SignInWithOAuth(c.Request().Context(), provider, req.Code, req.State, req.Error)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(http.StatusOK, s.sessionResp(c, user, true))
}

func (s *HTTPServer) Logout(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.auth.SignOut(c.Request().Context(), user.ID); err != nil {
		return s.authError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) Session(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.sessionResp(c, user, false))
}

func (s *HTTPServer) TakeTour(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.onboarding.TakeTour(c.Request().Context(), user.ID); err != nil {
		return s.httpError(c, err, "Failed to add sample resources. Please try again.")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) SkipTour(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.onboarding.Skip(c.Request().Context(), user.ID); err != nil {
		return s.httpError(c, err, "Failed to update profile. Please try again.")
	}
	return c.NoContent(http.StatusNoContent)
}

// sessionResp bootstraps the session and describes it. The token is only
// handed out right after signing in.
func (s *HTTPServer) sessionResp(c echo.Context, user *db.User, withToken bool) SessionResp {
	ctx := c.Request().Context()
	sess := user.Session()
	state := s.onboarding.Bootstrap(ctx, sess)

	resp := SessionResp{
		Session:      sess,
		State:        state,
		NeedsWelcome: state.NeedsWelcome(),
	}
	if withToken {
		resp.Token = user.Token
	}
	if profile, err := s.onboarding.Profile(ctx, user.ID); err == nil {
		resp.Profile = profile
	}
	return resp
}
