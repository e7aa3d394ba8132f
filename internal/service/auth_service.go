package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrBackendUnavailable = errors.New("certification backend unavailable")
)

// Claims extends JWT standard claims with the candidate id.
type Claims struct {
	jwt.RegisteredClaims
	CandidateID string `json:"candidate_id"`
}

// Authenticator verifies candidate credentials upstream.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResult, error)
}

// AuthService handles login, gateway JWTs and the candidate session context.
// A candidate has one session at a time; a new login replaces the previous
// one and invalidates its token.
type AuthService struct {
	cfg     *config.Config
	rdb     *redis.Client
	backend Authenticator
	log     zerolog.Logger
	now     func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, backend Authenticator, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:     cfg,
		rdb:     rdb,
		backend: backend,
		log:     log.With().Str("component", "auth_service").Logger(),
		now:     time.Now,
	}
}

// Login verifies credentials with the backend, stores the session and returns
// a signed gateway token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.Session, error) {
	res, err := s.backend.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, upstreamError("login", err)
	}

	now := s.now()
	sess := &model.Session{
		JTI:       uuid.New().String(),
		Token:     res.Token,
		Candidate: res.Candidate,
		IssuedAt:  now,
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.JTI,
			Subject:   sess.Candidate.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		CandidateID: sess.Candidate.ID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session: %w", err)
	}
	key := config.CacheKey.CandidateSessionKey(sess.Candidate.ID)
	if err := s.rdb.Set(ctx, key, raw, s.cfg.JWTExpiry).Err(); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}

	s.log.Info().Str("candidate_id", sess.Candidate.ID).Msg("Candidate logged in")
	return signed, sess, nil
}

// ValidateToken parses and validates a gateway JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CandidateID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Session loads the session context for a token. The token's JTI must match
// the stored session, otherwise a newer login or a logout superseded it.
func (s *AuthService) Session(ctx context.Context, claims *Claims) (*model.Session, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.CandidateSessionKey(claims.CandidateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionInvalidated
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.JTI != claims.ID {
		return nil, ErrSessionInvalidated
	}
	return &sess, nil
}

// Logout tears down the candidate's session.
func (s *AuthService) Logout(ctx context.Context, candidateID string) error {
	if err := s.rdb.Del(ctx, config.CacheKey.CandidateSessionKey(candidateID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Info().Str("candidate_id", candidateID).Msg("Candidate logged out")
	return nil
}
