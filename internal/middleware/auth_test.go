package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
)

type profileRecorder struct {
	mock.Mock
}

func (m *profileRecorder) RememberProfile(ctx context.Context, profile models.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func setupRouter(t *testing.T, profiles ProfileRecorder) (*gin.Engine, *auth.Codec) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	codec, err := auth.NewCodec("supersecretkeyyoushouldnotcommit", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(codec, profiles, nil))
	r.GET("/me", func(c *gin.Context) {
		identity, ok := auth.IdentityFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"userId": c.GetString("userID"), "name": identity.DisplayName})
	})
	return r, codec
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	profiles := new(profileRecorder)
	router, codec := setupRouter(t, profiles)
	profiles.On("RememberProfile", mock.Anything, models.Profile{ID: "u1", DisplayName: "Ana"}).Return(nil).Once()

	token, err := codec.Issue(auth.Identity{UserID: "u1", DisplayName: "Ana"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, "Ana", body["name"])
	profiles.AssertExpectations(t)
}

func TestAuthMiddlewareProfileFailureDoesNotBlock(t *testing.T) {
	profiles := new(profileRecorder)
	router, codec := setupRouter(t, profiles)
	profiles.On("RememberProfile", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	token, err := codec.Issue(auth.Identity{UserID: "u1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	router, _ := setupRouter(t, nil)
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage token":  "Bearer not-a-token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			var body struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthenticated", body.Error.Kind)
		})
	}
}
