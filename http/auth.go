package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeUnauthorized = "unauthorized"
)

// RequireToken rejects the requests that do not carry the given token, either
// as a bearer token or as a token query parameter. An empty token disables the
// check.
func RequireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(requestToken(r)), []byte(token)) != 1 {
			err := errors.New("invalid access token").
				WithType(ErrTypeUnauthorized).
				WithTag("path", r.URL.Path)

			logs.WithTag("remote_addr", r.RemoteAddr).Warn(err)
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
