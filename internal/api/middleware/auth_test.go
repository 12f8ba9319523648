package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func authTestHandler(t *testing.T, validator AuthValidator) (http.Handler, *string) {
	var seenUserID string
	handler := BearerAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seenUserID
}

func TestBearerAuth_ValidToken(t *testing.T) {
	validator := new(MockAuthValidator)
	validator.On("ValidateToken", mock.Anything, "dct_secret").Return("user-1", nil)

	handler, seenUserID := authTestHandler(t, validator)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer dct_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", *seenUserID)
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	handler, _ := authTestHandler(t, new(MockAuthValidator))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestBearerAuth_WrongScheme(t *testing.T) {
	handler, _ := authTestHandler(t, new(MockAuthValidator))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	validator := new(MockAuthValidator)
	validator.On("ValidateToken", mock.Anything, "dct_revoked").
		Return("", domain.ErrTokenRevoked)

	handler, _ := authTestHandler(t, validator)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer dct_revoked")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	// Revoked and unknown tokens get the same response.
	assert.Contains(t, w.Body.String(), "invalid api token")
}

func TestGetUserID_Unset(t *testing.T) {
	require.Empty(t, GetUserID(context.Background()))
}
