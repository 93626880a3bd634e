package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/apiclient/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if id := r.Header.Get(common.RequestIDHeaderName); id != "" {
			w.Header().Set(common.RequestIDHeaderName, id)
		}

		next.ServeHTTP(rec, r)

		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", r.Header.Get(common.RequestIDHeaderName),
			"device_id", r.Header.Get(common.DeviceIDHeaderName),
		)
	})
}

// requireAuth rejects requests without a valid bearer access token and puts
// the caller's user id into the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
			return
		}

		userID, err := GetUserIDFromToken(token, s.secret, s.now())
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "access token expired"
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg, nil)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
