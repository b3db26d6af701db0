package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelcraft/booking-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", "travelcraft-identity", time.Hour)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	userID := uuid.New()
	email := "nimal@example.com"

	token, err := jwtService.GenerateAccessToken(userID, email, []string{"traveler"})
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{
			"message": "success",
			"user_id": userCtx.UserID,
			"email":   userCtx.Email,
		})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")
	assert.Contains(t, w.Body.String(), email)
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is required")
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestAuthMiddleware_InvalidAuthFormat(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	tests := []struct {
		name   string
		header string
	}{
		{"Missing Bearer", "some-token"},
		{"Wrong prefix", "Basic some-token"},
		{"Empty Bearer", "Bearer "},
		{"No token", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	for _, token := range []string{"invalid.token.here", "randomstringnotavalidtoken"} {
		t.Run(token, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			// Unparseable tokens count as expired as well as invalid
			body := w.Body.String()
			hasValidError := strings.Contains(body, "INVALID_TOKEN") || strings.Contains(body, "TOKEN_EXPIRED")
			assert.True(t, hasValidError, "Expected INVALID_TOKEN or TOKEN_EXPIRED error, got: %s", body)
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := setupTestJWTService()
	expired := jwt.NewService("test-access-secret-key-123456789", "travelcraft-identity", -time.Minute)

	token, err := expired.GenerateAccessToken(uuid.New(), "nimal@example.com", []string{"traveler"})
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	jwtService := setupTestJWTService()
	wrongService := jwt.NewService("wrong-secret-key", "travelcraft-identity", time.Hour)

	token, err := wrongService.GenerateAccessToken(uuid.New(), "nimal@example.com", []string{"traveler"})
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expectedCtx := UserContext{
			UserID: uuid.New(),
			Email:  "nimal@example.com",
			Roles:  []string{"traveler"},
		}
		c.Set(UserContextKey, expectedCtx)

		userCtx, exists := GetUserContext(c)
		assert.True(t, exists)
		assert.Equal(t, expectedCtx, userCtx)
		assert.False(t, userCtx.IsAdmin())
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, "wrong type")
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Equal(t, UserContext{}, userCtx)
	})
}

func TestMustGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists - no panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expectedCtx := UserContext{UserID: uuid.New()}
		c.Set(UserContextKey, expectedCtx)

		assert.NotPanics(t, func() {
			userCtx := MustGetUserContext(c)
			assert.Equal(t, expectedCtx.UserID, userCtx.UserID)
		})
	})

	t.Run("Context not found - panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Panics(t, func() {
			MustGetUserContext(c)
		})
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	userID := uuid.New()

	tests := []struct {
		name           string
		userRoles      []string
		required       []string
		expectedStatus int
		checkBody      string
	}{
		{"User has required role", []string{"traveler", "admin"}, []string{RoleAdmin}, http.StatusOK, "success"},
		{"User lacks required role", []string{"traveler"}, []string{RoleAdmin}, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{"Any of several roles", []string{"ops"}, []string{RoleAdmin, "ops"}, http.StatusOK, "success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken(userID, "a@b.com", tt.userRoles)
			require.NoError(t, err)

			router := setupTestRouter()
			router.GET("/restricted", AuthMiddleware(jwtService, testLogger()), RequireRole(tt.required...), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest("GET", "/restricted", nil)
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.checkBody)
		})
	}

	t.Run("No user context", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/no-auth", RequireRole(RoleAdmin), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
		})

		req := httptest.NewRequest("GET", "/no-auth", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}

func TestRequestLogger(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestLogger(testLogger()))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
