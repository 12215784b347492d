package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authTestConfig() *config.Config {
	return &config.Config{
		JWTSecret:    "test-secret",
		JWTExpiresIn: "1h",
	}
}

func protectedRouter(auth *AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.GET("/admin/ping", auth.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": GetEmail(c)})
	})
	return router
}

func TestRequireAuthAcceptsIssuedToken(t *testing.T) {
	auth := NewAuthMiddleware(authTestConfig())
	token, err := auth.IssueToken("admin@example.com")
	require.NoError(t, err)

	router := protectedRouter(auth)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@example.com")
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	auth := NewAuthMiddleware(authTestConfig())
	router := protectedRouter(auth)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	otherCfg := authTestConfig()
	otherCfg.JWTSecret = "different-secret"
	token, err := NewAuthMiddleware(otherCfg).IssueToken("admin@example.com")
	require.NoError(t, err)

	router := protectedRouter(NewAuthMiddleware(authTestConfig()))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	cfg := authTestConfig()
	claims := Claims{
		Email: "admin@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	router := protectedRouter(NewAuthMiddleware(cfg))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken(""))
	assert.Equal(t, "", extractBearerToken("Basic abc"))
	assert.Equal(t, "", extractBearerToken("Bearer"))
}
