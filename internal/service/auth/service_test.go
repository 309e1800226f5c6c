package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"repairshop-backend/internal/env"
	internaljwt "repairshop-backend/internal/jwt"
	"repairshop-backend/internal/model"
)

type memoryRepository struct {
	mu           sync.Mutex
	users        map[string]model.UserItem
	usersByEmail map[string]string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users:        make(map[string]model.UserItem),
		usersByEmail: make(map[string]string),
	}
}

func (m *memoryRepository) CreateUser(ctx context.Context, user model.UserItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	m.usersByEmail[user.Email] = user.UserID
	return nil
}

func (m *memoryRepository) GetUser(ctx context.Context, userID string) (model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return model.UserItem{}, ErrNotFound
	}
	return user, nil
}

func (m *memoryRepository) FindUserByEmail(ctx context.Context, email string) (model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.usersByEmail[email]
	if !ok {
		return model.UserItem{}, ErrNotFound
	}
	user, ok := m.users[userID]
	if !ok {
		return model.UserItem{}, ErrNotFound
	}
	return user, nil
}

func setupJWT(t *testing.T) {
	t.Helper()

	t.Setenv(env.CustomerSecret, "test-customer-secret")
	t.Setenv(env.AdminSecret, "test-admin-secret")

	SetTokenIssuer(func(user internaljwt.User, role internaljwt.Role, validUntil int64) (internaljwt.TokenResponse, error) {
		token, err := internaljwt.CreateToken(user, role, validUntil)
		if err != nil {
			return internaljwt.TokenResponse{}, err
		}
		return internaljwt.TokenResponse{
			AccessToken: token,
		}, nil
	})

	t.Cleanup(func() {
		SetTokenIssuer(nil)
	})
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
}

func TestRegisterCreatesCustomer(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	result, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.User.Role != model.UserRoleCustomer {
		t.Fatalf("expected customer role, got %s", result.User.Role)
	}
	if result.User.PasswordHash == "secret" || result.User.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if result.Tokens.AccessToken == "" {
		t.Fatal("expected an access token")
	}
}

func TestRegisterValidatesRequiredFields(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	_, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "",
	})
	if err == nil {
		t.Fatal("expected validation error for missing password")
	}

	svcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected service error, got %T", err)
	}
	if svcErr.Code != ErrorCodeValidation {
		t.Fatalf("expected validation error, got %s", svcErr.Code)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	params := RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	}
	if _, err := svc.Register(context.Background(), params); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.Register(context.Background(), params)
	if svcErr, ok := err.(*Error); !ok || svcErr.Code != ErrorCodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestLoginCustomer(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	if _, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := svc.LoginCustomer(context.Background(), LoginParams{
		Email:    "jane@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.Email != "jane@example.com" {
		t.Fatalf("expected jane@example.com, got %s", result.User.Email)
	}

	identity, err := svc.CustomerIdentityFromAuthorizationHeader("Bearer " + result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("identity from header: %v", err)
	}
	if identity.UserID != result.User.UserID {
		t.Fatalf("expected user %s, got %s", result.User.UserID, identity.UserID)
	}
}

func TestLoginRejectsInvalidPassword(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	if _, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.LoginCustomer(context.Background(), LoginParams{
		Email:    "jane@example.com",
		Password: "wrong",
	})
	if svcErr, ok := err.(*Error); !ok || svcErr.Code != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestLoginAdminRejectsCustomerAccount(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	if _, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.LoginAdmin(context.Background(), LoginParams{
		Email:    "jane@example.com",
		Password: "secret",
	})
	if svcErr, ok := err.(*Error); !ok || svcErr.Code != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized error for role mismatch, got %v", err)
	}
}

func TestLoginAdmin(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	hashed, err := internaljwt.NewUser(internaljwt.RegisterUser{
		Email:    "agent@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := repo.CreateUser(context.Background(), model.UserItem{
		UserID:       "admin-1",
		Email:        "agent@example.com",
		Name:         "Agent",
		Role:         model.UserRoleAdmin,
		Status:       "active",
		PasswordHash: hashed.PasswordHash,
		CreatedAt:    fixedNow().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	result, err := svc.LoginAdmin(context.Background(), LoginParams{
		Email:    "agent@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	identity, err := svc.AdminIdentityFromAuthorizationHeader("Bearer " + result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("identity from header: %v", err)
	}
	if identity.UserID != "admin-1" {
		t.Fatalf("expected admin-1, got %s", identity.UserID)
	}

	// An admin token must not pass customer-side parsing.
	if _, err := svc.CustomerIdentityFromAuthorizationHeader("Bearer " + result.Tokens.AccessToken); err == nil {
		t.Fatal("admin token must not validate as a customer token")
	}
}

func TestLoginSkipsInactiveAccounts(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	result, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	disabled := result.User
	disabled.Status = "disabled"
	if err := repo.CreateUser(context.Background(), disabled); err != nil {
		t.Fatalf("disable: %v", err)
	}

	_, err = svc.LoginCustomer(context.Background(), LoginParams{
		Email:    "jane@example.com",
		Password: "secret",
	})
	if svcErr, ok := err.(*Error); !ok || svcErr.Code != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized for disabled account, got %v", err)
	}
}

func TestMe(t *testing.T) {
	setupJWT(t)
	repo := newMemoryRepository()
	svc := NewWithRepository(repo, fixedNow)

	result, err := svc.Register(context.Background(), RegisterParams{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	profile, err := svc.Me(context.Background(), Identity{UserID: result.User.UserID})
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if profile.User.Email != "jane@example.com" {
		t.Fatalf("expected jane@example.com, got %s", profile.User.Email)
	}

	_, err = svc.Me(context.Background(), Identity{UserID: "missing"})
	if svcErr, ok := err.(*Error); !ok || svcErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
