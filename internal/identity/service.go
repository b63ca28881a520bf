// Package identity is the identity backend: accounts, password sign-in,
// access and refresh tokens, and server-side sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/internal/models"
)

// DefaultMinPasswordLength applies when Options leaves it unset.
const DefaultMinPasswordLength = 8

// Options configures a Service.
type Options struct {
	RefreshTTL        time.Duration
	MinPasswordLength int
	Logger            *slog.Logger
}

// Service implements sign-up, sign-in, refresh and sign-out.
type Service struct {
	db          *gorm.DB
	sessions    SessionStore
	tokens      *TokenIssuer
	refreshTTL  time.Duration
	minPassword int
	log         *slog.Logger
	now         func() time.Time
}

func NewService(db *gorm.DB, sessions SessionStore, tokens *TokenIssuer, opts Options) *Service {
	s := &Service{
		db:          db,
		sessions:    sessions,
		tokens:      tokens,
		refreshTTL:  opts.RefreshTTL,
		minPassword: opts.MinPasswordLength,
		log:         opts.Logger,
		now:         time.Now,
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 30 * 24 * time.Hour
	}
	if s.minPassword <= 0 {
		s.minPassword = DefaultMinPasswordLength
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// MinPasswordLength is the shortest accepted password.
func (s *Service) MinPasswordLength() int { return s.minPassword }

// SignupInput is a sign-up request. Role defaults to client.
type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        gate.Role
}

// SignUp creates the account and its profile row in one transaction. It
// does not sign the user in.
func (s *Service) SignUp(ctx context.Context, in SignupInput) (*models.Profile, error) {
	email := normalizeEmail(in.Email)
	if len([]rune(in.Password)) < s.minPassword {
		return nil, auth.ErrWeakPassword
	}
	role := in.Role
	switch role {
	case gate.RoleUnknown:
		role = gate.RoleClient
	case gate.RoleClient, gate.RoleCollaborator:
	default:
		return nil, ErrRoleNotAllowed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	profile := &models.Profile{
		ID:          uuid.NewString(),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Email:       email,
		Role:        role.String(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return auth.ErrEmailAlreadyInUse
		}
		if err := tx.Create(&models.User{ID: profile.ID, Email: email, Password: string(hash)}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return auth.ErrEmailAlreadyInUse
			}
			return err
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("account created", "user_id", profile.ID, "role", profile.Role)
	return profile, nil
}

// SignIn checks the password and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	refresh, hash, err := newRefreshToken(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, &models.Session{
		ID:          sessionID,
		UserID:      user.ID,
		RefreshHash: hash,
		ExpiresAt:   s.now().Add(s.refreshTTL),
	}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("signed in", "user_id", user.ID, "session_id", sessionID)
	return s.issue(user.ID, sessionID, refresh)
}

// Refresh exchanges a refresh token for a new token pair. Presenting an
// already rotated refresh token revokes the session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	sessionID, hash, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrSessionInactive
	}
	if err != nil {
		return nil, err
	}
	if !sess.Active(s.now()) {
		return nil, ErrSessionInactive
	}
	if sess.RefreshHash != hash {
		return nil, s.revokeReused(ctx, sess)
	}

	refresh, newHash, err := newRefreshToken(sessionID)
	if err != nil {
		return nil, err
	}
	err = s.sessions.Rotate(ctx, sessionID, hash, newHash, s.now().Add(s.refreshTTL))
	switch {
	case errors.Is(err, ErrRefreshReused):
		return nil, s.revokeReused(ctx, sess)
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionInactive):
		return nil, ErrSessionInactive
	case err != nil:
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	return s.issue(sess.UserID, sessionID, refresh)
}

// revokeReused ends a session whose refresh token was presented after it
// had already been rotated.
func (s *Service) revokeReused(ctx context.Context, sess *models.Session) error {
	s.log.Warn("refresh token reuse; revoking session", "session_id", sess.ID, "user_id", sess.UserID)
	if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
		s.log.Error("revoke after reuse failed", "session_id", sess.ID, "error", err)
	}
	return ErrSessionInactive
}

// SignOut revokes the session.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.log.Info("signed out", "session_id", sessionID)
	return nil
}

// Authenticate validates an access token and the session behind it.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return Principal{}, err
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return Principal{}, ErrSessionInactive
	}
	if err != nil {
		return Principal{}, err
	}
	if !sess.Active(s.now()) || sess.UserID != claims.Subject {
		return Principal{}, ErrSessionInactive
	}
	return Principal{UserID: claims.Subject, SessionID: claims.SessionID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) issue(userID, sessionID, refresh string) (*auth.Session, error) {
	access, expiresAt, err := s.tokens.Issue(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &auth.Session{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
