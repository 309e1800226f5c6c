package chat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"repairshop-backend/internal/database"
	"repairshop-backend/internal/env"
	internaljwt "repairshop-backend/internal/jwt"
	"repairshop-backend/internal/model"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Identity is the caller identity the chat core consumes from authentication:
// an authenticated user id plus the token's role. Nothing else crosses the
// boundary.
type Identity struct {
	UserID string
	Email  string
}

type ResolveSessionParams struct {
	Identity   *Identity
	GuestName  string
	GuestEmail string
}

type SessionResult struct {
	Session   model.SessionItem
	ChatToken string
	Reused    bool
}

type MessageResult struct {
	Session model.SessionItem
	Message model.MessageItem
}

type ListMessagesResult struct {
	Messages []model.MessageItem
}

// SessionSummary is one row of the admin session list: the session plus the
// unread aggregation recomputed fresh at call time.
type SessionSummary struct {
	Session            model.SessionItem
	UnreadCount        int
	LastMessageSnippet string
}

type ChatAccess struct {
	SessionID string
	UserID    string
}

type Service struct {
	repo Repository
	now  func() time.Time
}

var (
	chatTokenSecret []byte
	chatTokenTTL    = 7 * 24 * time.Hour
)

type chatTokenClaims struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func SetChatTokenSecret(secret []byte) {
	if len(secret) == 0 {
		return
	}
	chatTokenSecret = make([]byte, len(secret))
	copy(chatTokenSecret, secret)
}

func SetChatTokenTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	chatTokenTTL = ttl
}

func tokenSecret() []byte {
	if len(chatTokenSecret) > 0 {
		return chatTokenSecret
	}
	return []byte(env.Get(env.ChatTokenSecret))
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

// ResolveSession finds-or-creates the session for the caller. An
// authenticated customer reuses their most-recently-active open session; a
// guest always starts a fresh one. Reuse is enforced here, not by a store
// constraint, so two racing first contacts can each create a session; the
// next resolve settles on the most recently active of the two.
func (s *Service) ResolveSession(ctx context.Context, params ResolveSessionParams) (SessionResult, error) {
	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	var session model.SessionItem
	reused := false

	if params.Identity != nil && params.Identity.UserID != "" {
		userID := params.Identity.UserID
		if _, err := s.repo.GetUser(ctx, userID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return SessionResult{}, newError(ErrorCodeUnauthorized, "user not found", err)
			}
			return SessionResult{}, newError(ErrorCodeInternal, "failed to verify user", err)
		}

		existing, err := s.repo.ListSessionsByUser(ctx, userID)
		if err != nil {
			return SessionResult{}, newError(ErrorCodeInternal, "failed to look up sessions", err)
		}
		for _, candidate := range existing {
			if candidate.Status == model.SessionStatusActive {
				session = candidate
				reused = true
				break
			}
		}

		if !reused {
			session = model.SessionItem{
				SessionID:     uuid.NewString(),
				UserID:        userID,
				Status:        model.SessionStatusActive,
				CreatedAt:     nowStr,
				LastMessageAt: nowStr,
			}
			if err := s.repo.CreateSession(ctx, session); err != nil {
				return SessionResult{}, newError(ErrorCodeInternal, "failed to create session", err)
			}
		}
	} else {
		guestName := strings.TrimSpace(params.GuestName)
		guestEmail := normalizeEmail(params.GuestEmail)
		if guestName == "" || guestEmail == "" {
			return SessionResult{}, newError(ErrorCodeValidation, "guest name and email are required", nil)
		}
		if !isValidEmail(guestEmail) {
			return SessionResult{}, newError(ErrorCodeValidation, "a valid guest email is required", nil)
		}

		session = model.SessionItem{
			SessionID:     uuid.NewString(),
			GuestName:     guestName,
			GuestEmail:    guestEmail,
			Status:        model.SessionStatusActive,
			CreatedAt:     nowStr,
			LastMessageAt: nowStr,
		}
		if err := s.repo.CreateSession(ctx, session); err != nil {
			return SessionResult{}, newError(ErrorCodeInternal, "failed to create session", err)
		}
	}

	token, err := signChatToken(chatTokenClaims{
		SessionID: session.SessionID,
		UserID:    session.UserID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(chatTokenTTL).Unix(),
	})
	if err != nil {
		return SessionResult{}, newError(ErrorCodeInternal, "failed to issue chat token", err)
	}

	return SessionResult{
		Session:   session,
		ChatToken: token,
		Reused:    reused,
	}, nil
}

// PostCustomerMessage appends a customer message and bumps the session's
// activity marker. The two writes are separate statements; a crash in
// between leaves the ordering timestamp one message stale, which the session
// list tolerates. Every rejection happens before the first write; a request
// answered with an error has no side effect.
func (s *Service) PostCustomerMessage(ctx context.Context, token, sessionID, body string) (MessageResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}
	if strings.TrimSpace(body) == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message body is required", nil)
	}

	access, err := s.ValidateChatAccess(token)
	if err != nil {
		return MessageResult{}, err
	}
	if access.SessionID != sessionID {
		return MessageResult{}, newError(ErrorCodeForbidden, "token does not match session", nil)
	}

	session, err := s.repo.GetSession(ctx, access.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MessageResult{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to fetch session", err)
	}

	if session.Status == model.SessionStatusClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "session is closed", nil)
	}

	return s.appendMessage(ctx, session, model.SenderTypeCustomer, access.UserID, body)
}

// PostAdminMessage appends an admin reply. Admin messages are born read:
// the unread aggregation only tracks whether the agent has seen customer
// messages, never the reverse.
func (s *Service) PostAdminMessage(ctx context.Context, identity Identity, sessionID, body string) (MessageResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}
	if strings.TrimSpace(body) == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "message body is required", nil)
	}

	admin, err := s.requireAdmin(ctx, identity)
	if err != nil {
		return MessageResult{}, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MessageResult{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to fetch session", err)
	}

	return s.appendMessage(ctx, session, model.SenderTypeAdmin, admin.UserID, body)
}

func (s *Service) appendMessage(ctx context.Context, session model.SessionItem, senderType model.SenderType, senderID, body string) (MessageResult, error) {
	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	messageID := uuid.NewString()
	message := model.MessageItem{
		PK:         model.MessagePK(session.SessionID, messageID),
		SessionID:  session.SessionID,
		MessageID:  messageID,
		SenderType: senderType,
		SenderID:   senderID,
		Body:       body,
		IsRead:     senderType == model.SenderTypeAdmin,
		CreatedAt:  nowStr,
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	if err := s.repo.UpdateSessionActivity(ctx, session.SessionID, nowStr); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update session", err)
	}

	session.LastMessageAt = nowStr

	return MessageResult{
		Session: session,
		Message: message,
	}, nil
}

// ListCustomerMessages returns the widget's view of its own session,
// ascending by creation time. A deleted session yields an empty list, not an
// error; the widget simply renders nothing on its next tick.
func (s *Service) ListCustomerMessages(ctx context.Context, token, sessionID string) (ListMessagesResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ListMessagesResult{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	access, err := s.ValidateChatAccess(token)
	if err != nil {
		return ListMessagesResult{}, err
	}
	if access.SessionID != sessionID {
		return ListMessagesResult{}, newError(ErrorCodeForbidden, "token does not match session", nil)
	}

	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return ListMessagesResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	return ListMessagesResult{Messages: messages}, nil
}

func (s *Service) ListMessages(ctx context.Context, identity Identity, sessionID string) (ListMessagesResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ListMessagesResult{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	if _, err := s.requireAdmin(ctx, identity); err != nil {
		return ListMessagesResult{}, err
	}

	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return ListMessagesResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	return ListMessagesResult{Messages: messages}, nil
}

// MarkSessionRead flips every unread customer message in the session to
// read. Repeated calls with no new customer messages are no-ops.
func (s *Service) MarkSessionRead(ctx context.Context, identity Identity, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	if _, err := s.requireAdmin(ctx, identity); err != nil {
		return err
	}

	if err := s.repo.MarkCustomerMessagesRead(ctx, sessionID); err != nil {
		return newError(ErrorCodeInternal, "failed to mark messages read", err)
	}
	return nil
}

// ListSessionsWithUnread returns every session ordered by last activity,
// each with its unread customer-message count and the body of the newest
// message. Counts are recomputed from the store on every call; nothing is
// cached.
func (s *Service) ListSessionsWithUnread(ctx context.Context, identity Identity) ([]SessionSummary, error) {
	if _, err := s.requireAdmin(ctx, identity); err != nil {
		return nil, err
	}

	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		messages, err := s.repo.ListMessages(ctx, session.SessionID)
		if err != nil {
			return nil, newError(ErrorCodeInternal, "failed to aggregate messages", err)
		}

		summary := SessionSummary{Session: session}
		for _, message := range messages {
			if message.SenderType == model.SenderTypeCustomer && !message.IsRead {
				summary.UnreadCount++
			}
		}
		if len(messages) > 0 {
			summary.LastMessageSnippet = messages[len(messages)-1].Body
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.SessionItem{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to fetch session", err)
	}
	return session, nil
}

func (s *Service) CloseSession(ctx context.Context, identity Identity, sessionID string) (model.SessionItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.SessionItem{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	if _, err := s.requireAdmin(ctx, identity); err != nil {
		return model.SessionItem{}, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.SessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.SessionItem{}, newError(ErrorCodeInternal, "failed to fetch session", err)
	}

	if session.Status != model.SessionStatusClosed {
		if err := s.repo.UpdateSessionStatus(ctx, sessionID, model.SessionStatusClosed); err != nil {
			return model.SessionItem{}, newError(ErrorCodeInternal, "failed to close session", err)
		}
		session.Status = model.SessionStatusClosed
	}

	return session, nil
}

// DeleteSession removes the session and all its messages. Messages go first
// so a failure cannot strand them without a parent; there is no soft delete.
func (s *Service) DeleteSession(ctx context.Context, identity Identity, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	if _, err := s.requireAdmin(ctx, identity); err != nil {
		return err
	}

	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "session not found", err)
		}
		return newError(ErrorCodeInternal, "failed to fetch session", err)
	}

	if err := s.repo.DeleteSessionMessages(ctx, sessionID); err != nil {
		return newError(ErrorCodeInternal, "failed to delete messages", err)
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return newError(ErrorCodeInternal, "failed to delete session", err)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, identity Identity) (model.UserItem, error) {
	if identity.UserID == "" {
		return model.UserItem{}, newError(ErrorCodeUnauthorized, "invalid user identity", nil)
	}

	user, err := s.repo.GetUser(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.UserItem{}, newError(ErrorCodeUnauthorized, "user not found", err)
		}
		return model.UserItem{}, newError(ErrorCodeInternal, "failed to verify user", err)
	}
	if user.Role != model.UserRoleAdmin {
		return model.UserItem{}, newError(ErrorCodeUnauthorized, "admin access required", nil)
	}
	return user, nil
}

func (s *Service) ValidateChatAccess(token string) (ChatAccess, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ChatAccess{}, newError(ErrorCodeUnauthorized, "chat token required", nil)
	}

	claims, err := verifyChatToken(token, s.now)
	if err != nil {
		return ChatAccess{}, newError(ErrorCodeUnauthorized, "invalid chat token", err)
	}

	return ChatAccess{
		SessionID: claims.SessionID,
		UserID:    claims.UserID,
	}, nil
}

func (s *Service) AdminIdentityFromAuthorizationHeader(header string) (Identity, error) {
	return identityFromAuthorizationHeader(header, internaljwt.RoleAdmin)
}

func (s *Service) CustomerIdentityFromAuthorizationHeader(header string) (Identity, error) {
	return identityFromAuthorizationHeader(header, internaljwt.RoleCustomer)
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

func signChatToken(claims chatTokenClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, tokenSecret())
	if _, err := mac.Write(payload); err != nil {
		return "", err
	}
	signature := mac.Sum(nil)

	payloadPart := base64.RawURLEncoding.EncodeToString(payload)
	sigPart := base64.RawURLEncoding.EncodeToString(signature)

	return fmt.Sprintf("%s.%s", payloadPart, sigPart), nil
}

func verifyChatToken(token string, now func() time.Time) (chatTokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return chatTokenClaims{}, errors.New("invalid token format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return chatTokenClaims{}, fmt.Errorf("decode payload: %w", err)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return chatTokenClaims{}, fmt.Errorf("decode signature: %w", err)
	}

	mac := hmac.New(sha256.New, tokenSecret())
	if _, err := mac.Write(payload); err != nil {
		return chatTokenClaims{}, fmt.Errorf("sign payload: %w", err)
	}

	if !hmac.Equal(sig, mac.Sum(nil)) {
		return chatTokenClaims{}, errors.New("signature mismatch")
	}

	var claims chatTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return chatTokenClaims{}, fmt.Errorf("unmarshal claims: %w", err)
	}

	nowTime := now().UTC()
	if claims.ExpiresAt != 0 && nowTime.Unix() > claims.ExpiresAt {
		return chatTokenClaims{}, errors.New("token expired")
	}

	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if local == "" || domain == "" {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	return true
}
