package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/WinBackBot/internal/models"
)

const authHeaderPrefix = "Bearer "

// requireBearer rejects requests whose Authorization header does not carry token.
func requireBearer(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, authHeaderPrefix) {
				slog.Warn("Server.requireBearer: missing authorization token", "path", r.URL.Path)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing authorization token"))
				return
			}
			got := []byte(strings.TrimPrefix(header, authHeaderPrefix))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				slog.Warn("Server.requireBearer: invalid authorization token", "path", r.URL.Path)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid authorization token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
