package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/audit"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/httputil"
	"github.com/vairify/vaicheck-server-go/internal/util"
)

type contextKey string

const (
	ParticipantContextKey contextKey = "participant"
	ReviewerContextKey    contextKey = "reviewer"
)

// GetParticipant returns the authenticated user id, or "" outside ParticipantAuth.
func GetParticipant(ctx context.Context) string {
	if id, ok := ctx.Value(ParticipantContextKey).(string); ok {
		return id
	}
	return ""
}

func WithParticipant(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ParticipantContextKey, userID)
}

// GetReviewer returns the reviewer id set by ReviewerAuth.
func GetReviewer(ctx context.Context) string {
	if id, ok := ctx.Value(ReviewerContextKey).(string); ok {
		return id
	}
	return ""
}

// ParticipantAuth validates HS256 bearer tokens issued by the account service.
// The subject claim is the participant's user id.
type ParticipantAuth struct {
	secret []byte
}

func NewParticipantAuth(secret string) *ParticipantAuth {
	return &ParticipantAuth{secret: []byte(secret)}
}

func (m *ParticipantAuth) Validate(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token subject is required")
	}
	return claims.Subject, nil
}

func (m *ParticipantAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			httputil.WriteError(w, apperrors.Unauthorized("Authentication not configured"))
			return
		}

		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		userID, err := m.Validate(token)
		if err != nil {
			log.Warn().Err(err).Msg("participant auth: invalid token")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid_token"},
			})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid or expired token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), userID)))
	})
}

// ReviewerAuth admits manual reviewers holding the shared reviewer token.
type ReviewerAuth struct {
	tokenHash string
}

func NewReviewerAuth(tokenHash string) *ReviewerAuth {
	return &ReviewerAuth{tokenHash: tokenHash}
}

func (m *ReviewerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			httputil.WriteErrorWithStatus(w, http.StatusServiceUnavailable,
				apperrors.New(apperrors.ErrCodeSystemFailure, "Manual review not configured"))
			return
		}

		token := extractToken(r)
		if token == "" || !util.CheckPasswordHash(token, m.tokenHash) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "reviewer_token"},
			})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid reviewer token"))
			return
		}

		reviewerID := "reviewer:" + util.HashToken(token)[:12]
		ctx := context.WithValue(r.Context(), ReviewerContextKey, reviewerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
