package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string // Exact origins, or "*" for any
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // Preflight cache duration in seconds
}

// DefaultCORSConfig allows no origins. Browser dashboards must be listed
// explicitly.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	}
}

// CORS creates middleware that handles Cross-Origin Resource Sharing. With
// no allowed origins it adds nothing, since rs/cors would otherwise treat an
// empty list as "*".
func CORS(config *CORSConfig) func(http.Handler) http.Handler {
	if config == nil || len(config.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	defaults := DefaultCORSConfig()
	methods, headers := config.AllowedMethods, config.AllowedHeaders
	if len(methods) == 0 {
		methods = defaults.AllowedMethods
	}
	if len(headers) == 0 {
		headers = defaults.AllowedHeaders
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
	return c.Handler
}
