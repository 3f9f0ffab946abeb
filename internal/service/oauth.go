package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
)

const (
	ProviderGithub = "github"

	oauthStateTTL = 10 * time.Minute
	githubAPIURL  = "https://api.github.com"
	accessDenied  = "access_denied"
)

type (
	oauthProfile struct {
		Subject     string
		Email       string
		DisplayName string
		PhotoURL    string
	}

	githubProvider struct {
		config *oauth2.Config
		api    *resty.Client
	}

	oauthProviders struct {
		github *githubProvider

		mu     sync.Mutex
		states map[string]time.Time
		now    func() time.Time
	}
)

func newOAuthProviders(cfg *config.Config) *oauthProviders {
	p := &oauthProviders{
		states: make(map[string]time.Time),
		now:    time.Now,
	}
	if cfg.GithubEnabled() {
		p.github = &githubProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GithubClientID,
				ClientSecret: cfg.GithubClientSecret,
				RedirectURL:  cfg.GithubRedirectURL,
				Scopes:       []string{"user:email", "read:user"},
				Endpoint:     github.Endpoint,
			},
			api: resty.New().SetBaseURL(githubAPIURL).SetHeader("Accept", "application/vnd.github+json"),
		}
	}
	return p
}

func (p *oauthProviders) get(provider string) (*githubProvider, error) {
	if provider != ProviderGithub || p.github == nil {
		return nil, ErrUnknownProvider
	}
	return p.github, nil
}

func (p *oauthProviders) newState() string {
	state := uuid.New().String()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	for s, expires := range p.states {
		if now.After(expires) {
			delete(p.states, s)
		}
	}
	p.states[state] = now.Add(oauthStateTTL)
	return state
}

// consumeState accepts a state exactly once and only before it expires.
func (p *oauthProviders) consumeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	expires, ok := p.states[state]
	if !ok {
		return false
	}
	delete(p.states, state)
	return !p.now().After(expires)
}

func (g *githubProvider) profile(ctx context.Context, code string) (*oauthProfile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}

	var ghUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	resp, err := g.api.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetResult(&ghUser).
		Get("/user")
	if err != nil {
		return nil, errors.Wrap(err, "get user info")
	}
	if resp.IsError() {
		return nil, errors.Errorf("github api returned status %d", resp.StatusCode())
	}

	email, err := g.verifiedEmail(ctx, token.AccessToken, ghUser.Email)
	if err != nil {
		return nil, err
	}

	name := ghUser.Name
	if name == "" {
		name = ghUser.Login
	}

	return &oauthProfile{
		Subject:     strconv.FormatInt(ghUser.ID, 10),
		Email:       email,
		DisplayName: name,
		PhotoURL:    ghUser.AvatarURL,
	}, nil
}

// verifiedEmail picks the address to sign in with. Only verified addresses
// count: the public profile email first, then the primary one, then any.
func (g *githubProvider) verifiedEmail(ctx context.Context, accessToken, preferred string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	resp, err := g.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&emails).
		Get("/user/emails")
	if err != nil {
		return "", errors.Wrap(err, "get user emails")
	}
	if resp.IsError() {
		return "", errors.Errorf("github api returned status %d", resp.StatusCode())
	}

	var primary, other string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		switch {
		case preferred != "" && strings.EqualFold(e.Email, preferred):
			return e.Email, nil
		case e.Primary && primary == "":
			primary = e.Email
		case other == "":
			other = e.Email
		}
	}
	if primary != "" {
		return primary, nil
	}
	if other != "" {
		return other, nil
	}
	return "", ErrOAuthEmailUnverified
}

// OAuthConsentURL starts a provider sign-in and returns where to send the
// user.
func (s *Auth) OAuthConsentURL(provider string) (string, error) {
	p, err := s.oauth.get(provider)
	if err != nil {
		return "", err
	}
	return p.config.AuthCodeURL(s.oauth.newState(), oauth2.AccessTypeOnline), nil
}

// SignInWithOAuth finishes a provider sign-in. providerError is the error
// parameter the provider redirected back with, if any.
func (s *Auth) SignInWithOAuth(ctx context.Context, provider, code, state, providerError string) (*db.User, error) {
	p, err := s.oauth.get(provider)
	if err != nil {
		return nil, err
	}

	valid := s.oauth.consumeState(state)
	if providerError == accessDenied {
		return nil, ErrOAuthCancelled
	}
	if providerError != "" {
		return nil, errors.Errorf("oauth provider error: %s", providerError)
	}
	if !valid {
		return nil, ErrOAuthState
	}

	profile, err := p.profile(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "github profile")
	}

	user, err := s.upsertOAuthUser(ctx, provider, profile)
	if err != nil {
		return nil, err
	}

	s.emit(user.ID, user.Session())
	return user, nil
}

// upsertOAuthUser finds the user by provider subject, then links an
// existing account with the same email, and creates one otherwise. The
// token is rotated in every case.
func (s *Auth) upsertOAuthUser(ctx context.Context, provider string, profile *oauthProfile) (*db.User, error) {
	user := db.User{}
	res := s.db.WithContext(ctx).
		Where("provider = ? AND provider_subject = ?", provider, profile.Subject).
		First(&user)
	if res.Error == nil {
		if err := s.rotateToken(ctx, &user); err != nil {
			return nil, err
		}
		return &user, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(res.Error, "find oauth user")
	}

	email := normalizeEmail(profile.Email)
	res = s.db.WithContext(ctx).Where("email = ?", email).First(&user)
	switch {
	case res.Error == nil:
		updates := map[string]interface{}{
			"provider":         provider,
			"provider_subject": profile.Subject,
			"token":            uuid.New().String(),
		}
		if res := s.db.WithContext(ctx).Model(&user).Updates(updates); res.Error != nil {
			return nil, errors.Wrap(res.Error, "link oauth user")
		}
		user.Provider = &provider
		user.ProviderSubject = &profile.Subject
		user.Token = updates["token"].(string)
		return &user, nil
	case !errors.Is(res.Error, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(res.Error, "find user")
	}

	user = db.User{
		Email:           email,
		Token:           uuid.New().String(),
		DisplayName:     optional(profile.DisplayName),
		PhotoURL:        optional(profile.PhotoURL),
		Provider:        &provider,
		ProviderSubject: &profile.Subject,
	}
	if res := s.db.WithContext(ctx).Create(&user); res.Error != nil {
		return nil, errors.Wrap(res.Error, "create oauth user")
	}
	return &user, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
