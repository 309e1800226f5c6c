package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"repairshop-backend/internal/api"
	"repairshop-backend/internal/api/middleware"
	"repairshop-backend/internal/dto"
	"repairshop-backend/internal/env"
	internaljwt "repairshop-backend/internal/jwt"
	"repairshop-backend/internal/model"
	"repairshop-backend/internal/queue"
	chatservice "repairshop-backend/internal/service/chat"
)

type chatMemoryRepository struct {
	mu       sync.Mutex
	users    map[string]model.UserItem
	sessions map[string]model.SessionItem
	messages map[string][]model.MessageItem
}

func newChatMemoryRepository() *chatMemoryRepository {
	return &chatMemoryRepository{
		users:    make(map[string]model.UserItem),
		sessions: make(map[string]model.SessionItem),
		messages: make(map[string][]model.MessageItem),
	}
}

func (m *chatMemoryRepository) GetUser(ctx context.Context, userID string) (model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return model.UserItem{}, chatservice.ErrNotFound
	}
	return user, nil
}

func (m *chatMemoryRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *chatMemoryRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.SessionItem{}, chatservice.ErrNotFound
	}
	return session, nil
}

func (m *chatMemoryRepository) ListSessions(ctx context.Context) ([]model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]model.SessionItem, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (m *chatMemoryRepository) ListSessionsByUser(ctx context.Context, userID string) ([]model.SessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]model.SessionItem, 0)
	for _, session := range m.sessions {
		if session.UserID == userID {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (m *chatMemoryRepository) UpdateSessionActivity(ctx context.Context, sessionID, lastMessageAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return chatservice.ErrNotFound
	}
	session.LastMessageAt = lastMessageAt
	m.sessions[sessionID] = session
	return nil
}

func (m *chatMemoryRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return chatservice.ErrNotFound
	}
	session.Status = status
	m.sessions[sessionID] = session
	return nil
}

func (m *chatMemoryRepository) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *chatMemoryRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.SessionID] = append(m.messages[message.SessionID], message)
	return nil
}

func (m *chatMemoryRepository) ListMessages(ctx context.Context, sessionID string) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := make([]model.MessageItem, len(m.messages[sessionID]))
	copy(messages, m.messages[sessionID])
	return messages, nil
}

func (m *chatMemoryRepository) MarkCustomerMessagesRead(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := m.messages[sessionID]
	for i := range messages {
		if messages[i].SenderType == model.SenderTypeCustomer {
			messages[i].IsRead = true
		}
	}
	return nil
}

func (m *chatMemoryRepository) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, sessionID)
	return nil
}

func setupChatTestHandler(t *testing.T) (http.Handler, *chatservice.Service, *chatMemoryRepository) {
	t.Helper()

	t.Setenv(env.CustomerSecret, "customer-test-secret")
	t.Setenv(env.AdminSecret, "admin-test-secret")
	chatservice.SetChatTokenSecret([]byte("chat-test-secret"))

	repo := newChatMemoryRepository()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	svc := chatservice.NewWithRepository(repo, func() time.Time { return now })

	queueManager := queue.NewRequestQueueManager(10, 1)
	server := api.NewAPIServer(":0", queueManager, nil)

	chatEndpoints := NewChatEndpointsWithPaths(svc, ChatPaths{
		PublicSessionPath:   "/api/storefront/v1/chat/session",
		PublicSessionPrefix: "/api/storefront/v1/chat/sessions/",
		AdminSessionsPath:   "/api/admin/v1/chat/sessions",
		AdminSessionPrefix:  "/api/admin/v1/chat/sessions/",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/storefront/v1/chat/session", server.MakeHTTPHandleFunc(chatEndpoints.ResolveSession))
	mux.HandleFunc("/api/storefront/v1/chat/sessions/", server.MakeHTTPHandleFunc(chatEndpoints.PublicSessionMessages))
	mux.HandleFunc("/api/admin/v1/chat/sessions", server.MakeHTTPHandleFunc(chatEndpoints.Sessions, middleware.ValidateAdminJWT))
	mux.HandleFunc("/api/admin/v1/chat/sessions/", server.MakeHTTPHandleFunc(chatEndpoints.SessionOperations, middleware.ValidateAdminJWT))

	t.Cleanup(queueManager.Shutdown)

	return mux, svc, repo
}

func seedAdmin(t *testing.T, repo *chatMemoryRepository) string {
	t.Helper()

	repo.users["admin-1"] = model.UserItem{
		UserID: "admin-1",
		Email:  "agent@example.com",
		Role:   model.UserRoleAdmin,
		Status: "active",
	}

	token, err := internaljwt.CreateToken(
		internaljwt.User{Id: "admin-1", Email: "agent@example.com"},
		internaljwt.RoleAdmin,
		time.Now().Add(time.Hour).Unix(),
	)
	if err != nil {
		t.Fatalf("create admin token: %v", err)
	}
	return token
}

func TestResolveGuestSessionEndpoint(t *testing.T) {
	handler, _, _ := setupChatTestHandler(t)

	payload := dto.ResolveSessionRequest{GuestName: "Sam", GuestEmail: "sam@example.com"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/storefront/v1/chat/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var resp dto.ResolveSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChatToken == "" {
		t.Fatal("expected chat token")
	}
	if resp.Session.SessionID == "" {
		t.Fatal("expected session id")
	}
}

func TestResolveGuestSessionRequiresEmail(t *testing.T) {
	handler, _, _ := setupChatTestHandler(t)

	payload := dto.ResolveSessionRequest{GuestName: "Sam"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/storefront/v1/chat/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestWidgetMessageRoundTrip(t *testing.T) {
	handler, svc, _ := setupChatTestHandler(t)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	payload := dto.SendMessageRequest{Body: "my phone won't charge"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/storefront/v1/chat/sessions/"+resolved.Session.SessionID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Chat-Token", resolved.ChatToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/storefront/v1/chat/sessions/"+resolved.Session.SessionID+"/messages", nil)
	listReq.Header.Set("X-Chat-Token", resolved.ChatToken)
	listRec := httptest.NewRecorder()

	handler.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", listRec.Code)
	}

	var resp dto.ListChatMessagesResponse
	if err := json.NewDecoder(listRec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Body != "my phone won't charge" {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
}

func TestWidgetMessageRejectsMissingToken(t *testing.T) {
	handler, svc, _ := setupChatTestHandler(t)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/storefront/v1/chat/sessions/"+resolved.Session.SessionID+"/messages", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestWidgetMessageRejectsForeignSessionWithoutWriting(t *testing.T) {
	handler, svc, repo := setupChatTestHandler(t)

	a, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	b, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Kim",
		GuestEmail: "kim@example.com",
	})
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}

	payload := dto.SendMessageRequest{Body: "smuggled"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/storefront/v1/chat/sessions/"+a.Session.SessionID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Chat-Token", b.ChatToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	// A 403 must leave no durable side effect in either session.
	for _, id := range []string{a.Session.SessionID, b.Session.SessionID} {
		messages, err := repo.ListMessages(context.Background(), id)
		if err != nil {
			t.Fatalf("list %s: %v", id, err)
		}
		if len(messages) != 0 {
			t.Fatalf("rejected request persisted %d message(s) in %s", len(messages), id)
		}
	}
}

func TestAdminSessionListWithUnread(t *testing.T) {
	handler, svc, repo := setupChatTestHandler(t)
	token := seedAdmin(t, repo)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.PostCustomerMessage(context.Background(), resolved.ChatToken, resolved.Session.SessionID, "hello"); err != nil {
		t.Fatalf("post: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/chat/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp dto.ListSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(resp.Sessions))
	}
	if resp.Sessions[0].UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %d", resp.Sessions[0].UnreadCount)
	}
	if resp.Sessions[0].LastMessageSnippet != "hello" {
		t.Fatalf("unexpected snippet %q", resp.Sessions[0].LastMessageSnippet)
	}
}

func TestAdminSessionListRequiresToken(t *testing.T) {
	handler, _, _ := setupChatTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/chat/sessions", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAdminMarkReadEndpoint(t *testing.T) {
	handler, svc, repo := setupChatTestHandler(t)
	token := seedAdmin(t, repo)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.PostCustomerMessage(context.Background(), resolved.ChatToken, resolved.Session.SessionID, "hello"); err != nil {
		t.Fatalf("post: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/v1/chat/sessions/"+resolved.Session.SessionID+"/read", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	messages, err := repo.ListMessages(context.Background(), resolved.Session.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, msg := range messages {
		if !msg.IsRead {
			t.Fatalf("expected all messages read, got %+v", msg)
		}
	}
}

func TestAdminDeleteSessionEndpoint(t *testing.T) {
	handler, svc, repo := setupChatTestHandler(t)
	token := seedAdmin(t, repo)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.PostCustomerMessage(context.Background(), resolved.ChatToken, resolved.Session.SessionID, "bye"); err != nil {
		t.Fatalf("post: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/v1/chat/sessions/"+resolved.Session.SessionID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	if _, err := repo.GetSession(context.Background(), resolved.Session.SessionID); err != chatservice.ErrNotFound {
		t.Fatalf("session should be deleted, got %v", err)
	}
	messages, _ := repo.ListMessages(context.Background(), resolved.Session.SessionID)
	if len(messages) != 0 {
		t.Fatalf("messages should be deleted, got %d", len(messages))
	}
}

func TestAdminReplyEndpoint(t *testing.T) {
	handler, svc, repo := setupChatTestHandler(t)
	token := seedAdmin(t, repo)

	resolved, err := svc.ResolveSession(context.Background(), chatservice.ResolveSessionParams{
		GuestName:  "Sam",
		GuestEmail: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	payload := dto.SendMessageRequest{Body: "we can fix that today"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/chat/sessions/"+resolved.Session.SessionID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	var resp dto.SendMessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message.SenderType != string(model.SenderTypeAdmin) {
		t.Fatalf("expected admin sender, got %s", resp.Message.SenderType)
	}
	if !resp.Message.IsRead {
		t.Fatal("admin reply should be born read")
	}
}
