package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"repairshop-backend/internal/database"
	internaljwt "repairshop-backend/internal/jwt"
	"repairshop-backend/internal/model"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

var createTokenWithRefresh = internaljwt.CreateTokenWithRefresh

// SetTokenIssuer swaps the refresh-token issuer. Tests use it to avoid a live
// Redis connection; passing nil restores the default.
func SetTokenIssuer(issuer func(internaljwt.User, internaljwt.Role, int64) (internaljwt.TokenResponse, error)) {
	if issuer == nil {
		createTokenWithRefresh = internaljwt.CreateTokenWithRefresh
		return
	}
	createTokenWithRefresh = issuer
}

func New(db *database.Database) *Service {
	return &Service{
		repo: NewDynamoRepository(db),
		now:  time.Now,
	}
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo: repo,
		now:  now,
	}
}

// Register creates a customer account. Admin accounts are provisioned out of
// band; there is no self-service admin signup.
func (s *Service) Register(ctx context.Context, params RegisterParams) (AuthResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	name := strings.TrimSpace(params.Name)

	if email == "" || password == "" || name == "" {
		return AuthResult{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return AuthResult{}, newError(ErrorCodeConflict, "email already registered", nil)
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to check email", err)
	}

	newUser, err := internaljwt.NewUser(internaljwt.RegisterUser{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to prepare user", err)
	}

	now := s.now().UTC().Format(time.RFC3339)
	newUser.Id = uuid.NewString()

	user := model.UserItem{
		UserID:       newUser.Id,
		Email:        email,
		Name:         name,
		Role:         model.UserRoleCustomer,
		Status:       "active",
		PasswordHash: newUser.PasswordHash,
		CreatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to save user", err)
	}

	tokens, err := createTokenWithRefresh(newUser, internaljwt.RoleCustomer, 0)
	if err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return AuthResult{
		User:   user,
		Tokens: tokens,
	}, nil
}

func (s *Service) LoginCustomer(ctx context.Context, params LoginParams) (AuthResult, error) {
	return s.login(ctx, params, model.UserRoleCustomer, internaljwt.RoleCustomer)
}

func (s *Service) LoginAdmin(ctx context.Context, params LoginParams) (AuthResult, error) {
	return s.login(ctx, params, model.UserRoleAdmin, internaljwt.RoleAdmin)
}

func (s *Service) login(ctx context.Context, params LoginParams, wantRole model.UserRole, tokenRole internaljwt.Role) (AuthResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)

	if email == "" || password == "" {
		return AuthResult{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
		}
		return AuthResult{}, newError(ErrorCodeInternal, "failed to fetch user", err)
	}

	if user.Status != "active" || user.Role != wantRole {
		return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}
	if !internaljwt.ValidatePassword(user.PasswordHash, password) {
		return AuthResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	jwtUser := internaljwt.User{
		Id:           user.UserID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}

	tokens, err := createTokenWithRefresh(jwtUser, tokenRole, 0)
	if err != nil {
		return AuthResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return AuthResult{
		User:   user,
		Tokens: tokens,
	}, nil
}

func (s *Service) Me(ctx context.Context, identity Identity) (ProfileResult, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return ProfileResult{}, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProfileResult{}, newError(ErrorCodeNotFound, "user not found", err)
		}
		return ProfileResult{}, newError(ErrorCodeInternal, "failed to fetch user", err)
	}

	return ProfileResult{User: user}, nil
}

func (s *Service) CustomerIdentityFromAuthorizationHeader(header string) (Identity, error) {
	return identityFromAuthorizationHeader(header, internaljwt.RoleCustomer)
}

func (s *Service) AdminIdentityFromAuthorizationHeader(header string) (Identity, error) {
	return identityFromAuthorizationHeader(header, internaljwt.RoleAdmin)
}

func identityFromAuthorizationHeader(header string, role internaljwt.Role) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	claims, err := internaljwt.ParseToken(token, role)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	userID, _ := claims["id"].(string)
	email, _ := claims["email"].(string)
	if userID == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "token missing identifiers", nil)
	}

	return Identity{
		UserID: userID,
		Email:  email,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
