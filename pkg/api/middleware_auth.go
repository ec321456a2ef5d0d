package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/echoaid/pkg/auth"
	"github.com/dd0wney/echoaid/pkg/logging"
)

// requireRole validates the bearer token and requires at least role.
// With no token validator configured every request passes.
func (s *Server) requireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, err := auth.BearerToken(r)
		if err != nil {
			s.unauthorized(w, "Authentication required")
			return
		}

		claims, err := s.tokens.ValidateToken(r.Context(), token)
		if err != nil {
			s.logger.Debug("token validation failed",
				logging.String("validator", s.tokens.Name()),
				logging.Error(err),
			)
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token has expired"
			}
			s.unauthorized(w, msg)
			return
		}

		if !auth.Allows(claims.Role, role) {
			s.logger.Warn("insufficient role",
				logging.String("subject", claims.Subject),
				logging.String("role", claims.Role),
				logging.String("required", role),
				logging.String("path", r.URL.Path),
			)
			s.respondError(w, http.StatusForbidden, role+" access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="echoaid"`)
	s.respondError(w, http.StatusUnauthorized, message)
}

// reporterID prefers the authenticated subject over a self-declared id.
func reporterID(r *http.Request, declared string) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return declared
}
