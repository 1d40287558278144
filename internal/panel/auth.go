package panel

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// authMiddleware checks the operator bearer token against the
// configured bcrypt hash. An empty hash disables auth entirely, for
// local development behind a firewall.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APITokenHash == "" {
			next(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(s.cfg.APITokenHash), []byte(token)) != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next(w, r)
	}
}
