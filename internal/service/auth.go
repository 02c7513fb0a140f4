// Package service contains the application services: account authentication
// and the file access engine.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/cloudsentinel/internal/audit"
	pkgcrypto "github.com/and161185/cloudsentinel/internal/crypto"
	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/geo"
	"github.com/and161185/cloudsentinel/internal/limiter"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// Login failure reasons recorded on LOGIN_FAILED events.
const (
	reasonBadCredentials = "invalid credentials"
	reasonRateLimited    = "rate limited"
)

const minUsernameLen = 3

// dummySalt feeds the password hash on the unknown-user path.
var dummySalt = []byte("cloudsentinel-no-such-user")

// AuthService defines account operations.
type AuthService interface {
	// Register creates a new user with an Argon2id password hash.
	Register(ctx context.Context, username, email, password string) (userID string, err error)
	// Login applies rate limiting, authenticates the user and audits the attempt.
	Login(ctx context.Context, username, password, addr string) (model.Tokens, error)
	// Authenticate verifies an access token and returns the identity it carries.
	Authenticate(ctx context.Context, token string) (string, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	audit     *audit.Log
	lim       limiter.Limiter
	geo       geo.Resolver
	signKey   []byte
	accessTTL time.Duration
	minPwdLen int
	now       func() time.Time
	verify    func(password, salt, hash []byte) bool
	logger    *zap.Logger
}

// AuthOption customizes AuthServiceImpl.
type AuthOption func(*AuthServiceImpl)

// WithAuthResolver sets the resolver used to tag login events with a region.
func WithAuthResolver(r geo.Resolver) AuthOption { return func(s *AuthServiceImpl) { s.geo = r } }

// WithMinPasswordLen overrides the default minimum password length of 6.
func WithMinPasswordLen(n int) AuthOption { return func(s *AuthServiceImpl) { s.minPwdLen = n } }

// WithAuthLogger sets the logger.
func WithAuthLogger(l *zap.Logger) AuthOption { return func(s *AuthServiceImpl) { s.logger = l } }

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, log *audit.Log, lim limiter.Limiter, signKey []byte, accessTTL time.Duration, opts ...AuthOption) *AuthServiceImpl {
	s := &AuthServiceImpl{
		users:     users,
		audit:     log,
		lim:       lim,
		signKey:   signKey,
		accessTTL: accessTTL,
		minPwdLen: 6,
		now:       time.Now,
		verify:    pkgcrypto.VerifyPassword,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register validates input and creates the user record.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case len(username) < minUsernameLen:
		return "", errs.Validation("username", "must be at least %d characters", minUsernameLen)
	case strings.ContainsAny(username, "/\\ \t\r\n"):
		return "", errs.Validation("username", "must not contain slashes or whitespace")
	case !strings.Contains(email, "@"):
		return "", errs.Validation("email", "invalid address")
	case len(password) < s.minPwdLen:
		return "", errs.Validation("password", "must be at least %d characters", s.minPwdLen)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	saltAuth, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return "", err
	}
	u := &model.User{
		ID:        uid,
		Username:  username,
		Email:     email,
		PwdHash:   pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth:  saltAuth,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", err
	}
	s.logger.Info("user registered", zap.String("username", username))
	return uid.String(), nil
}

// Login authenticates with rate limiting by (username, addr). Both outcomes
// are audited; if the audit append fails no token is issued.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, addr string) (model.Tokens, error) {
	if username == "" {
		return model.Tokens{}, errs.Validation("username", "must not be empty")
	}
	addrHash := limiter.HashAddr(addr)
	region := s.region(ctx, addr)

	allowed, _, err := s.lim.Allow(ctx, username, addrHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, s.loginFailed(ctx, username, region, reasonRateLimited, errs.ErrRateLimited)
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, err
	}
	var ok bool
	if err == nil {
		ok = s.verify([]byte(password), u.SaltAuth, u.PwdHash)
	} else {
		// hash anyway so unknown users cost the same as wrong passwords
		s.verify([]byte(password), dummySalt, nil)
	}
	if !ok {
		blocked, _, ferr := s.lim.Failure(ctx, username, addrHash)
		if ferr != nil {
			s.logger.Warn("limiter failure not recorded", zap.String("username", username), zap.Error(ferr))
		}
		if ferr == nil && blocked {
			return model.Tokens{}, s.loginFailed(ctx, username, region, reasonRateLimited, errs.ErrRateLimited)
		}
		// unknown user and wrong password look the same to the caller
		return model.Tokens{}, s.loginFailed(ctx, username, region, reasonBadCredentials, errs.ErrUnauthorized)
	}

	if err := s.lim.Success(ctx, username, addrHash); err != nil {
		s.logger.Warn("limiter reset failed", zap.String("username", username), zap.Error(err))
	}

	if _, err := s.audit.Append(ctx, model.AuditEvent{
		Type:         model.EventLogin,
		ActorID:      u.Username,
		SourceRegion: region,
		Success:      true,
	}); err != nil {
		return model.Tokens{}, err
	}

	access, exp, err := s.issueAccessToken(u.Username)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, username, region, reason string, cause error) error {
	if _, err := s.audit.Append(ctx, model.AuditEvent{
		Type:         model.EventLoginFailed,
		ActorID:      username,
		SourceRegion: region,
		Detail:       reason,
	}); err != nil {
		return err
	}
	return cause
}

func (s *AuthServiceImpl) region(ctx context.Context, addr string) string {
	if s.geo == nil || addr == "" {
		return ""
	}
	r, err := s.geo.Resolve(ctx, addr)
	if err != nil {
		return ""
	}
	return r
}

// issueAccessToken creates a signed HS256 JWT for the given identity.
func (s *AuthServiceImpl) issueAccessToken(username string) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Authenticate parses and verifies token. Any problem is errs.ErrUnauthorized.
func (s *AuthServiceImpl) Authenticate(_ context.Context, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}
