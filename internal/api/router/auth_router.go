package router

import (
	"net/http"

	"repairshop-backend/internal/api"
	"repairshop-backend/internal/api/endpoints"
	"repairshop-backend/internal/api/middleware"
)

func CustomerAuthRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		authEndpoints := endpoints.NewCustomerAuthEndpoints(s.Database())
		mux.HandleFunc(prefix+"/auth/register", s.MakeHTTPHandleFunc(authEndpoints.Register))
		mux.HandleFunc(prefix+"/auth/login", s.MakeHTTPHandleFunc(authEndpoints.Login))
		mux.HandleFunc(prefix+"/auth/refresh", s.MakeHTTPHandleFunc(authEndpoints.Refresh))
		mux.HandleFunc(prefix+"/auth/me", s.MakeHTTPHandleFunc(authEndpoints.Me, middleware.ValidateCustomerJWT))
	}
}

func AdminAuthRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		authEndpoints := endpoints.NewAdminAuthEndpoints(s.Database())
		mux.HandleFunc(prefix+"/auth/login", s.MakeHTTPHandleFunc(authEndpoints.Login))
		mux.HandleFunc(prefix+"/auth/refresh", s.MakeHTTPHandleFunc(authEndpoints.Refresh))
		mux.HandleFunc(prefix+"/auth/me", s.MakeHTTPHandleFunc(authEndpoints.Me, middleware.ValidateAdminJWT))
	}
}
