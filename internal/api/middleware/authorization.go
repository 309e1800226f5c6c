package middleware

import (
	"net/http"
	"time"

	internaljwt "repairshop-backend/internal/jwt"
)

func ValidateJWTMiddleware(role internaljwt.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")

			if len(tokenString) <= len("Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString = tokenString[len("Bearer "):]

			claims, err := internaljwt.ParseToken(tokenString, role)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			expires, ok := claims["exp"].(float64)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if time.Now().Unix() > int64(expires) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			next(w, r)
		}
	}
}

var ValidateCustomerJWT = ValidateJWTMiddleware(internaljwt.RoleCustomer)
var ValidateAdminJWT = ValidateJWTMiddleware(internaljwt.RoleAdmin)
