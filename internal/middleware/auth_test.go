package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vairify/vaicheck-server-go/internal/util"
)

const testJWTSecret = "test-jwt-secret-with-enough-length!!"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func captureParticipant(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetParticipant(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestParticipantAuth(t *testing.T) {
	auth := NewParticipantAuth(testJWTSecret)

	t.Run("valid token sets participant", func(t *testing.T) {
		var seen string
		token := signToken(t, jwt.SigningMethodHS256, []byte(testJWTSecret), validClaims("user-1"))

		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/x/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		auth.Handler(captureParticipant(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", seen)
	})

	t.Run("missing token", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		auth.Handler(captureParticipant(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		assert.Empty(t, seen)
	})

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("another-secret"), validClaims("user-1")),
		"expired": signToken(t, jwt.SigningMethodHS256, []byte(testJWTSecret), jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"no expiry":   signToken(t, jwt.SigningMethodHS256, []byte(testJWTSecret), jwt.RegisteredClaims{Subject: "user-1"}),
		"no subject":  signToken(t, jwt.SigningMethodHS256, []byte(testJWTSecret), validClaims("")),
		"wrong alg":   signToken(t, jwt.SigningMethodHS512, []byte(testJWTSecret), validClaims("user-1")),
		"not a token": "garbage",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			var seen string
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			auth.Handler(captureParticipant(&seen)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
			assert.Empty(t, seen)
		})
	}

	t.Run("unconfigured secret fails closed", func(t *testing.T) {
		var seen string
		token := signToken(t, jwt.SigningMethodHS256, []byte(testJWTSecret), validClaims("user-1"))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		NewParticipantAuth("").Handler(captureParticipant(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, seen)
	})
}

func TestReviewerAuth(t *testing.T) {
	hash, err := util.HashPassword("reviewer-token")
	require.NoError(t, err)
	auth := NewReviewerAuth(hash)

	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetReviewer(r.Context())))
	}))

	t.Run("accepts the reviewer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/reviews/pending", nil)
		req.Header.Set("Authorization", "Bearer reviewer-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "reviewer:"+util.HashToken("reviewer-token")[:12], rec.Body.String())
	})

	t.Run("rejects other tokens", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/reviews/pending", nil)
		req.Header.Set("Authorization", "Bearer guess")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("disabled without a hash", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/reviews/pending", nil)
		req.Header.Set("Authorization", "Bearer reviewer-token")
		rec := httptest.NewRecorder()
		NewReviewerAuth("").Handler(handler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
