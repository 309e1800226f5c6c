package router

import (
	"net/http"
	"strings"

	"repairshop-backend/internal/api"
	"repairshop-backend/internal/api/endpoints"
	"repairshop-backend/internal/api/middleware"
	chatservice "repairshop-backend/internal/service/chat"
)

// StorefrontChatRoutes exposes the widget surface: session resolution plus
// sending and polling messages with a chat token.
func StorefrontChatRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := chatservice.New(s.Database())
		base := strings.TrimRight(prefix, "/")
		chatEndpoints := endpoints.NewChatEndpointsWithPaths(service, endpoints.ChatPaths{
			PublicSessionPath:   base + "/chat/session",
			PublicSessionPrefix: base + "/chat/sessions/",
		})

		mux.HandleFunc(prefix+"/chat/session", s.MakeHTTPHandleFunc(chatEndpoints.ResolveSession))
		mux.HandleFunc(prefix+"/chat/sessions/", s.MakeHTTPHandleFunc(chatEndpoints.PublicSessionMessages))
	}
}

// AdminChatRoutes exposes the console surface: session list with unread
// counts, per-session messages, read receipts, close and delete.
func AdminChatRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := chatservice.New(s.Database())
		base := strings.TrimRight(prefix, "/")
		chatEndpoints := endpoints.NewChatEndpointsWithPaths(service, endpoints.ChatPaths{
			AdminSessionsPath:  base + "/chat/sessions",
			AdminSessionPrefix: base + "/chat/sessions/",
		})

		mux.HandleFunc(prefix+"/chat/sessions", s.MakeHTTPHandleFunc(chatEndpoints.Sessions, middleware.ValidateAdminJWT))
		mux.HandleFunc(prefix+"/chat/sessions/", s.MakeHTTPHandleFunc(chatEndpoints.SessionOperations, middleware.ValidateAdminJWT))
	}
}
