// Package admin grants operator privileges to trusted internal callers.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "truconn/pkg/platform/middleware/request"
	"truconn/pkg/requestcontext"
)

// HeaderOperatorToken carries the shared operator token.
const HeaderOperatorToken = "X-Operator-Token"

// OperatorToken marks the request as coming from an operator when it carries
// the configured token. A wrong token is rejected; no token passes through
// unchanged. An empty expectedToken disables the check entirely.
func OperatorToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderOperatorToken)
			if token == "" || expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"invalid operator token"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithOperator(r.Context(), true)))
		})
	}
}
