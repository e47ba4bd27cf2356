package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/identity/domain"
	"github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
)

// EntityKindUser is the audit entity kind for users.
const EntityKindUser = "user"

// dummyHash absorbs a bcrypt comparison when the email is unknown, so the
// response time does not reveal whether the account exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService handles login, logout and password changes.
type AuthService struct {
	users    *repository.UserRepository
	sessions *session.Store
	csrf     *session.CSRFIssuer
	rdb      *redis.Client
	recorder *auditsvc.Recorder
	cfg      config.AuthConfig
	logger   *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users *repository.UserRepository,
	sessions *session.Store,
	csrf *session.CSRFIssuer,
	rdb *redis.Client,
	recorder *auditsvc.Recorder,
	cfg config.AuthConfig,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		csrf:     csrf,
		rdb:      rdb,
		recorder: recorder,
		cfg:      cfg,
		logger:   log.WithComponent("auth"),
	}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Session   *session.Session `json:"session"`
	CSRFToken string           `json:"csrf_token"`
	User      *domain.User     `json:"user"`
}

// Authenticate verifies credentials and opens a session. Failed attempts
// count towards both a sliding rate limit (per identifier and per IP) and
// the account's persistent lockout counter.
func (s *AuthService) Authenticate(ctx context.Context, email, password, remoteIP string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.checkRateLimit(ctx, "id:"+email); err != nil {
		return nil, err
	}
	if remoteIP != "" {
		if err := s.checkRateLimit(ctx, "ip:"+remoteIP); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Burn a comparison anyway to keep timing flat.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, errors.InvalidCredentials()
	}

	now := time.Now().UTC()
	if user.IsLocked(now) {
		return nil, errors.Locked("account temporarily locked, try again later")
	}
	if user.Status != domain.StatusActive {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, errors.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		count, recErr := s.users.RecordFailedLogin(ctx, user.ID, s.cfg.MaxFailedLogins, s.cfg.LockoutDuration)
		if recErr != nil {
			s.logger.Error().Err(recErr).Str("user_id", user.ID).Msg("failed to record login failure")
		} else if count >= s.cfg.MaxFailedLogins {
			if auditErr := s.recorder.RecordSecurityEvent(ctx, EntityKindUser, user.ID, "account locked after repeated failed logins"); auditErr != nil {
				s.logger.Error().Err(auditErr).Str("user_id", user.ID).Msg("failed to record lockout")
			}
			s.logger.Warn().Str("user_id", user.ID).Int("failures", count).Msg("account locked")
		}
		return nil, errors.InvalidCredentials()
	}

	if err := s.users.ResetFailedLogins(ctx, user.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to reset login failures")
	}

	sess := session.Session{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	if user.TenantID != nil {
		sess.TenantID = *user.TenantID
	}

	created, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.csrf.Issue(created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue CSRF token: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user authenticated")

	return &LoginResult{Session: created, CSRFToken: token, User: user}, nil
}

// Logout revokes the given session. Revoking an already-dead session is a
// no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// RefreshCSRF issues a fresh CSRF token for an existing session.
func (s *AuthService) RefreshCSRF(sessionID string) (string, error) {
	return s.csrf.Issue(sessionID)
}

// checkRateLimit enforces a fixed window counter per key. The counter lives
// in Redis so it holds across instances.
func (s *AuthService) checkRateLimit(ctx context.Context, key string) error {
	redisKey := "rl:login:" + key

	count, err := s.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		// Fail open; the persistent lockout counter still applies.
		s.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
		return nil
	}
	if count == 1 {
		s.rdb.Expire(ctx, redisKey, s.cfg.RateLimitWindow)
	}
	if count > int64(s.cfg.RateLimitMax) {
		return errors.Locked("too many login attempts, slow down")
	}
	return nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
