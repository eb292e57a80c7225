package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", time.Hour)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func issue(t *testing.T, service *jwt.Service, roles ...string) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	token, err := service.GenerateAccessToken(jwt.Identity{
		UserID: userID,
		Email:  "asha@example.com",
		Roles:  roles,
	})
	require.NoError(t, err)
	return userID, token
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	userID, token := issue(t, jwtService, jwt.RoleTraveler)

	router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
		userCtx := MustGetUserContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userCtx.UserID, "email": userCtx.Email})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), "asha@example.com")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtService := setupTestJWTService()
	_, token := issue(t, jwtService, jwt.RoleTraveler)
	_, foreignToken := issue(t, jwt.NewService("some-other-secret", time.Hour), jwt.RoleTraveler)
	_, expiredToken := issue(t, jwt.NewService("test-access-secret-key-123456789", -time.Hour), jwt.RoleTraveler)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"wrong scheme", "Basic " + token, "INVALID_AUTH_FORMAT"},
		{"no token", "Bearer ", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + foreignToken, "INVALID_TOKEN"},
		{"expired", "Bearer " + expiredToken, "TOKEN_EXPIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/protected", AuthMiddleware(jwtService, quietLogger()), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/admin", AuthMiddleware(jwtService, quietLogger()), RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/no-auth", RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	_, travelerToken := issue(t, jwtService, jwt.RoleTraveler)
	_, adminToken := issue(t, jwtService, jwt.RoleTraveler, jwt.RoleAdmin)

	call := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, call("/admin", adminToken).Code)

	w := call("/admin", travelerToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")

	w = call("/no-auth", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserContext(c)
	assert.False(t, ok)
	assert.Panics(t, func() { MustGetUserContext(c) })

	c.Set(UserContextKey, "not a user")
	_, ok = GetUserContext(c)
	assert.False(t, ok)

	want := UserContext{UserID: uuid.New(), Roles: []string{jwt.RoleAdmin}}
	c.Set(UserContextKey, want)
	got, ok := GetUserContext(c)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.True(t, got.HasRole(jwt.RoleAdmin))
	assert.False(t, got.HasRole(jwt.RoleTraveler))
}
