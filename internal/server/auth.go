package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearer gates every webhook route on the shared feed secret.
// Unauthorized requests are rejected before any handler runs, so a bad
// credential leaves no trace in the ledger or the store. An empty configured
// token locks the webhook shut rather than open.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || s.token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
