package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

const minPasswordLength = 6

var (
	ErrLoginUserNotFound         = errors.New("user not found")
	ErrLoginPasswordDoesNotMatch = errors.New("password does not match")
	ErrEmailAlreadyInUse         = errors.New("email already in use")
	ErrWeakPassword              = errors.New("password is too short")
	ErrOAuthCancelled            = errors.New("oauth sign-in cancelled")
	ErrOAuthState                = errors.New("oauth state is unknown or expired")
	ErrUnknownProvider           = errors.New("unknown oauth provider")
	ErrOAuthEmailUnverified      = errors.New("oauth account has no verified email")
	ErrUnauthorized              = errors.New("invalid token")
)

type ErrorCode string

const (
	CodeUserNotFound  ErrorCode = "user-not-found"
	CodeWrongPassword ErrorCode = "wrong-password"
	CodeEmailInUse    ErrorCode = "email-already-in-use"
	CodeWeakPassword  ErrorCode = "weak-password"
	CodePopupClosed   ErrorCode = "popup-closed-by-user"
	CodeInternal      ErrorCode = "internal"
)

// Code classifies an identity error.
func Code(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrLoginUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrLoginPasswordDoesNotMatch):
		return CodeWrongPassword
	case errors.Is(err, ErrEmailAlreadyInUse):
		return CodeEmailInUse
	case errors.Is(err, ErrWeakPassword):
		return CodeWeakPassword
	case errors.Is(err, ErrOAuthCancelled):
		return CodePopupClosed
	}
	return CodeInternal
}

// Message is the text shown to the user for an identity error.
func Message(err error) string {
	switch Code(err) {
	case CodeUserNotFound:
		return "No account found with this email"
	case CodeWrongPassword:
		return "Incorrect password"
	case CodeEmailInUse:
		return "Email already registered"
	case CodeWeakPassword:
		return "Password should be at least 6 characters"
	case CodePopupClosed:
		return "Sign-in cancelled"
	}
	return "Something went wrong. Please try again."
}

// SessionObserver is told about every sign-in (with the new session) and
// sign-out (with a nil session).
type SessionObserver func(userID uint64, sess *models.Session)

type Auth struct {
	db         *gorm.DB
	logger     *zap.SugaredLogger
	bcryptCost int
	oauth      *oauthProviders

	mu        sync.RWMutex
	observers map[uint64]SessionObserver
	nextID    uint64
}

func NewAuth(db *gorm.DB, cfg *config.Config, l *zap.SugaredLogger) *Auth {
	return &Auth{
		db:         db,
		logger:     l,
		bcryptCost: cfg.BcryptCost,
		oauth:      newOAuthProviders(cfg),
		observers:  make(map[uint64]SessionObserver),
	}
}

func (s *Auth) SignUp(ctx context.Context, email, pass string) (*db.User, error) {
	if len(pass) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.bcryptGen(pass)
	if err != nil {
		return nil, errors.Wrap(err, "bcryptGen")
	}

	user := db.User{
		Email:    normalizeEmail(email),
		Password: hash,
		Token:    uuid.New().String(),
	}
	res := s.db.WithContext(ctx).Create(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailAlreadyInUse
		}
		return nil, errors.Wrap(res.Error, "create user")
	}

	s.emit(user.ID, user.Session())
	return &user, nil
}

func (s *Auth) SignIn(ctx context.Context, email, pass string) (*db.User, error) {
	user := db.User{}
	res := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLoginUserNotFound
		}
		return nil, errors.Wrap(res.Error, "find user")
	}

	if err := s.bcryptCheck(user.Password, pass); err != nil {
		return nil, ErrLoginPasswordDoesNotMatch
	}

	if err := s.rotateToken(ctx, &user); err != nil {
		return nil, err
	}

	s.emit(user.ID, user.Session())
	return &user, nil
}

// SignOut invalidates the user's token and ends their live sessions.
func (s *Auth) SignOut(ctx context.Context, userID uint64) error {
	user := db.User{GormForkedModel: db.GormForkedModel{ID: userID}}
	if err := s.rotateToken(ctx, &user); err != nil {
		return err
	}

	s.emit(userID, nil)
	return nil
}

func (s *Auth) Authenticate(ctx context.Context, token string) (*db.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	user := db.User{}
	res := s.db.WithContext(ctx).Where("token = ?", token).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(res.Error, "find user in db")
	}
	return &user, nil
}

// OnSessionChange registers fn and returns a func that removes it.
func (s *Auth) OnSessionChange(fn SessionObserver) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Auth) emit(userID uint64, sess *models.Session) {
	s.mu.RLock()
	observers := make([]SessionObserver, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(userID, sess)
	}
}

func (s *Auth) rotateToken(ctx context.Context, user *db.User) error {
	token := uuid.New().String()
	res := s.db.WithContext(ctx).Model(user).Update("token", token)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update token")
	}
	if res.RowsAffected == 0 {
		return ErrLoginUserNotFound
	}
	user.Token = token
	return nil
}

func (s *Auth) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), s.bcryptCost)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Auth) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
