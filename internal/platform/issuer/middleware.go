package issuer

import (
	"log/slog"
	"net/http"
	"strings"

	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

// Error codes written by RequireIssuer. Clients map them to actionable errors.
const (
	ErrorSignerRequired = "signer_required"
	ErrorSignerRejected = "signer_rejected"
)

// Validator validates a raw bearer token.
type Validator interface {
	Validate(tokenString string) (*Claims, error)
}

// RequireIssuer rejects requests without a valid write-scoped issuer token
// and stores the token subject in the request context.
func RequireIssuer(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "state change without issuer token", "request_id", requestID)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            ErrorSignerRequired,
					ErrorDescription: "an issuer token is required for state-changing calls",
				})
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "issuer token rejected", "error", err, "request_id", requestID)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            ErrorSignerRejected,
					ErrorDescription: err.Error(),
				})
				return
			}
			if !claims.HasScope(ScopeWrite) {
				logger.WarnContext(ctx, "issuer token lacks write scope",
					"subject", claims.Subject,
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{
					Error:            ErrorSignerRejected,
					ErrorDescription: "token does not grant " + ScopeWrite,
				})
				return
			}

			ctx = requestcontext.WithIssuer(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
