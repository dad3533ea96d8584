package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/repository"
	"github.com/chorusfm/chorus/pkg/auth"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefix = "chk_"

// Credentials carries whatever the connection presented. Exactly one scheme
// must resolve; they are tried in the order session token, API key, trusted
// internal caller.
type Credentials struct {
	SessionToken   string
	APIKey         string
	InternalToken  string
	InternalUserID string
}

// IdentityResolver maps inbound connection credentials to a user identity.
// The playback coordination layer consumes this as a black box.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, creds Credentials) (*model.UserIdentity, error)
}

// AuthService handles authentication business logic
type AuthService struct {
	userRepo       *repository.UserRepository
	jwtManager     *auth.JWTManager
	rdb            *redis.Client
	internalSecret string
}

func NewAuthService(
	userRepo *repository.UserRepository,
	jwtManager *auth.JWTManager,
	rdb *redis.Client,
	internalSecret string,
) *AuthService {
	return &AuthService{
		userRepo:       userRepo,
		jwtManager:     jwtManager,
		rdb:            rdb,
		internalSecret: internalSecret,
	}
}

// ResolveIdentity tries the three credential schemes in order. A connection
// failing all of them is refused before any registry interaction.
func (s *AuthService) ResolveIdentity(ctx context.Context, creds Credentials) (*model.UserIdentity, error) {
	switch {
	case creds.SessionToken != "":
		return s.resolveSessionToken(ctx, creds.SessionToken)
	case creds.APIKey != "":
		return s.resolveAPIKey(creds.APIKey)
	case creds.InternalToken != "":
		return s.resolveInternal(creds)
	default:
		return nil, model.ErrNoCredentials
	}
}

func (s *AuthService) resolveSessionToken(ctx context.Context, token string) (*model.UserIdentity, error) {
	exists, err := s.rdb.Exists(ctx, "blacklist:"+token).Result()
	if err == nil && exists > 0 {
		return nil, model.ErrInvalidCredentials
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return &model.UserIdentity{UserID: claims.UserID, Name: claims.Name}, nil
}

func (s *AuthService) resolveAPIKey(key string) (*model.UserIdentity, error) {
	digest := sha256.Sum256([]byte(key))
	apiKey, err := s.userRepo.FindAPIKeyByDigest(hex.EncodeToString(digest[:]))
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return &model.UserIdentity{UserID: apiKey.UserID, Name: apiKey.User.Name}, nil
}

// resolveInternal accepts a direct user id from trusted in-process callers of
// the surrounding media server, gated on a shared secret.
func (s *AuthService) resolveInternal(creds Credentials) (*model.UserIdentity, error) {
	if s.internalSecret == "" {
		return nil, model.ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(creds.InternalToken), []byte(s.internalSecret)) != 1 {
		return nil, model.ErrInvalidCredentials
	}

	userID, err := uuid.Parse(creds.InternalUserID)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}

	name := "internal"
	if user, err := s.userRepo.FindByID(userID); err == nil {
		name = user.Name
	}
	return &model.UserIdentity{UserID: userID, Name: name}, nil
}

// ==================== Session management ====================

// Login verifies email/password and issues a session token
func (s *AuthService) Login(req model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Name)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &model.LoginResponse{
		Token: token,
		User:  user.ToResponse(),
	}, nil
}

// Logout blacklists the session token until it would have expired anyway
func (s *AuthService) Logout(ctx context.Context, token string, expiry time.Duration) error {
	return s.rdb.Set(ctx, "blacklist:"+token, "1", expiry).Err()
}

// GetProfile returns the user's profile
func (s *AuthService) GetProfile(userID uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// ==================== API keys ====================

// GenerateAPIKey mints a new API key for a user and stores only its digest.
// The raw key is returned exactly once.
func (s *AuthService) GenerateAPIKey(userID uuid.UUID, label string) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := apiKeyPrefix + hex.EncodeToString(raw)

	digest := sha256.Sum256([]byte(key))
	err := s.userRepo.CreateAPIKey(&model.APIKey{
		UserID: userID,
		Label:  label,
		Digest: hex.EncodeToString(digest[:]),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}
