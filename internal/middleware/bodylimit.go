package middleware

import (
	"net/http"

	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/httputil"
)

const (
	DefaultMaxBodySize = 64 << 10
)

// BodyLimit caps request bodies. Routes that accept live captures mount a
// second, larger limit of their own.
type BodyLimit struct {
	maxSize int64
}

func NewBodyLimit(maxSize int64) *BodyLimit {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimit{maxSize: maxSize}
}

func (m *BodyLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxSize {
			httputil.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
				apperrors.ValidationError("Request body too large"))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		}
		next.ServeHTTP(w, r)
	})
}
