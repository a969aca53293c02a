package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const (
	principalContextKey = "principal"
	adminKeyHeader      = "X-Admin-Key"
)

// requireAuth resolves the caller from X-Admin-Key or a bearer token. The
// admin key, when presented, must match; it never falls back to the token.
func (s *Server) requireAuth(c *gin.Context) (domain.Principal, bool) {
	if key := strings.TrimSpace(c.GetHeader(adminKeyHeader)); key != "" {
		if s.adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
			return domain.Principal{}, false
		}
		principal := domain.Principal{OperatorID: domain.AdminKeySubject, AdminKey: true}
		c.Set(principalContextKey, principal)
		return principal, true
	}

	if s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Validate(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, domain.ErrTokenExpired) {
			err = domain.ErrTokenInvalid
		}
		writeError(c, err)
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}
