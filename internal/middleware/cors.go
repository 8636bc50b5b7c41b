package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware returns CORS configuration for the web and mobile clients.
// allowedOrigins is shared with the WebSocket origin check.
func CORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,

		// Allow common HTTP methods
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},

		// Allow common headers
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},

		// Expose headers to the client
		ExposedHeaders: []string{
			"X-Request-Id",
		},

		// Credentials cannot be combined with a wildcard origin
		AllowCredentials: !allowAll,

		// Cache preflight requests for 5 minutes
		MaxAge: 300,
	})
}
