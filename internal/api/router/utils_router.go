package router

import (
	"net/http"

	"repairshop-backend/internal/api"
	"repairshop-backend/internal/api/endpoints"
)

func UtilsRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		utilsEndpoints := endpoints.NewUtilsEndpoints()
		mux.HandleFunc(prefix+"/hello-world", s.MakeHTTPHandleFunc(utilsEndpoints.HelloWorld))
		mux.HandleFunc(prefix+"/health", s.MakeHTTPHandleFunc(utilsEndpoints.Health))
	}
}
