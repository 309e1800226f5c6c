package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"repairshop-backend/internal/dto"
	"repairshop-backend/internal/model"
	chatservice "repairshop-backend/internal/service/chat"
)

type ChatEndpoints interface {
	ResolveSession(http.ResponseWriter, *http.Request) error
	PublicSessionMessages(http.ResponseWriter, *http.Request) error
	Sessions(http.ResponseWriter, *http.Request) error
	SessionOperations(http.ResponseWriter, *http.Request) error
}

type ChatPaths struct {
	PublicSessionPath   string
	PublicSessionPrefix string
	AdminSessionsPath   string
	AdminSessionPrefix  string
}

type chatEndpoints struct {
	service *chatservice.Service
	paths   ChatPaths
}

func NewChatEndpointsWithPaths(service *chatservice.Service, paths ChatPaths) ChatEndpoints {
	return &chatEndpoints{
		service: service,
		paths:   paths,
	}
}

func (h *chatEndpoints) ResolveSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleResolveSession,
	})
}

func (h *chatEndpoints) PublicSessionMessages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleListPublicMessages,
		http.MethodPost: h.handlePostCustomerMessage,
	})
}

func (h *chatEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListSessions,
	})
}

// SessionOperations dispatches everything under the admin session prefix:
// {id}, {id}/messages, {id}/read and {id}/close.
func (h *chatEndpoints) SessionOperations(w http.ResponseWriter, r *http.Request) error {
	_, action, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	switch action {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  h.handleListMessages,
			http.MethodPost: h.handlePostAdminMessage,
		})
	case "read":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPatch: h.handleMarkSessionRead,
		})
	case "close":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.handleCloseSession,
		})
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:    h.handleGetSession,
			http.MethodDelete: h.handleDeleteSession,
		})
	default:
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Session not found",
			ErrorLog:   fmt.Errorf("unknown session action: %s", action),
		}
	}
}

func (h *chatEndpoints) handleResolveSession(w http.ResponseWriter, r *http.Request) error {
	var req dto.ResolveSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid request payload",
				ErrorLog:   fmt.Errorf("decode resolve session request: %w", err),
			}
		}
	}

	params := chatservice.ResolveSessionParams{
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
	}

	// A logged-in customer sends their bearer token; guests send name and
	// email in the body instead.
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		identity, err := h.service.CustomerIdentityFromAuthorizationHeader(authHeader)
		if err != nil {
			return h.serviceError(err)
		}
		params.Identity = &identity
	}

	result, err := h.service.ResolveSession(r.Context(), params)
	if err != nil {
		return h.serviceError(err)
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}

	return WriteJSON(w, status, dto.ResolveSessionResponse{
		Session:   toSessionResponse(result.Session),
		ChatToken: result.ChatToken,
		Reused:    result.Reused,
	})
}

func (h *chatEndpoints) handlePostCustomerMessage(w http.ResponseWriter, r *http.Request) error {
	sessionID, err := h.extractPublicSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode customer message request: %w", err),
		}
	}

	token := chatTokenFromRequest(r)
	result, err := h.service.PostCustomerMessage(r.Context(), token, sessionID, req.Body)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.SendMessageResponse{
		Message: toChatMessageResponse(result.Message),
	})
}

func (h *chatEndpoints) handleListPublicMessages(w http.ResponseWriter, r *http.Request) error {
	sessionID, err := h.extractPublicSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	token := chatTokenFromRequest(r)
	result, err := h.service.ListCustomerMessages(r.Context(), token, sessionID)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, toListMessagesResponse(result.Messages))
}

func (h *chatEndpoints) handleListSessions(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	summaries, err := h.service.ListSessionsWithUnread(r.Context(), identity)
	if err != nil {
		return h.serviceError(err)
	}

	resp := dto.ListSessionsResponse{Sessions: make([]dto.SessionSummaryResponse, len(summaries))}
	for i, summary := range summaries {
		resp.Sessions[i] = dto.SessionSummaryResponse{
			Session:            toSessionResponse(summary.Session),
			UnreadCount:        summary.UnreadCount,
			LastMessageSnippet: summary.LastMessageSnippet,
		}
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (h *chatEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	result, err := h.service.ListMessages(r.Context(), identity, sessionID)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, toListMessagesResponse(result.Messages))
}

func (h *chatEndpoints) handlePostAdminMessage(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	var req dto.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid request payload",
			ErrorLog:   fmt.Errorf("decode admin message request: %w", err),
		}
	}

	result, err := h.service.PostAdminMessage(r.Context(), identity, sessionID, req.Body)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.SendMessageResponse{
		Message: toChatMessageResponse(result.Message),
	})
}

func (h *chatEndpoints) handleMarkSessionRead(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	if err := h.service.MarkSessionRead(r.Context(), identity, sessionID); err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.MarkReadResponse{Success: true})
}

func (h *chatEndpoints) handleCloseSession(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	session, err := h.service.CloseSession(r.Context(), identity, sessionID)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *chatEndpoints) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	if _, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization")); err != nil {
		return h.serviceError(err)
	}

	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *chatEndpoints) handleDeleteSession(w http.ResponseWriter, r *http.Request) error {
	sessionID, _, err := h.extractAdminSessionPath(r.URL.Path)
	if err != nil {
		return err
	}

	identity, err := h.service.AdminIdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return h.serviceError(err)
	}

	if err := h.service.DeleteSession(r.Context(), identity, sessionID); err != nil {
		return h.serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.DeleteSessionResponse{Success: true})
}

func chatTokenFromRequest(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("X-Chat-Token"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("chatToken"))
	}
	return token
}

func (h *chatEndpoints) extractPublicSessionPath(path string) (string, error) {
	prefix := h.paths.PublicSessionPrefix
	if prefix == "" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("public route not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("public path mismatch: %s", path)}
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[1] != "messages" || parts[0] == "" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("invalid public session path: %s", path)}
	}
	return parts[0], nil
}

func (h *chatEndpoints) extractAdminSessionPath(path string) (string, string, error) {
	prefix := h.paths.AdminSessionPrefix
	if prefix == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("admin route not configured")}
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("session path mismatch: %s", path)}
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("session id missing: %s", path)}
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	if len(parts) == 2 {
		return parts[0], parts[1], nil
	}
	return "", "", &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: fmt.Errorf("invalid session path: %s", path)}
}

func (h *chatEndpoints) serviceError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*chatservice.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("chat service: %w", err),
		}
	}

	var logErr error
	if svcErr.Err != nil {
		logErr = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		logErr = svcErr
	}

	switch svcErr.Code {
	case chatservice.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: logErr}
	case chatservice.ErrorCodeUnauthorized:
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: svcErr.Message, ErrorLog: logErr}
	case chatservice.ErrorCodeForbidden:
		return &HTTPError{StatusCode: http.StatusForbidden, Message: svcErr.Message, ErrorLog: logErr}
	case chatservice.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: logErr}
	case chatservice.ErrorCodeConflict:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: logErr}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: logErr}
	}
}

func toSessionResponse(item model.SessionItem) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID:     item.SessionID,
		UserID:        item.UserID,
		GuestName:     item.GuestName,
		GuestEmail:    item.GuestEmail,
		Status:        string(item.Status),
		CreatedAt:     item.CreatedAt,
		LastMessageAt: item.LastMessageAt,
	}
}

func toChatMessageResponse(item model.MessageItem) dto.ChatMessageResponse {
	return dto.ChatMessageResponse{
		MessageID:  item.MessageID,
		SessionID:  item.SessionID,
		SenderType: string(item.SenderType),
		SenderID:   item.SenderID,
		Body:       item.Body,
		IsRead:     item.IsRead,
		CreatedAt:  item.CreatedAt,
	}
}

func toListMessagesResponse(messages []model.MessageItem) dto.ListChatMessagesResponse {
	resp := dto.ListChatMessagesResponse{Messages: make([]dto.ChatMessageResponse, len(messages))}
	for i, msg := range messages {
		resp.Messages[i] = toChatMessageResponse(msg)
	}
	return resp
}
