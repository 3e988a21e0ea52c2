package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the resolved caller.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller resolved by Authenticator.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*models.Identity)
	return identity, ok && identity != nil
}

// Authenticator resolves bearer API keys to callers.
type Authenticator struct {
	identity   interfaces.IdentityService
	adminToken string
	logger     arbor.ILogger
}

// NewAuthenticator creates an authenticator. An empty adminToken disables
// the admin API.
func NewAuthenticator(identity interfaces.IdentityService, adminToken string, logger arbor.ILogger) *Authenticator {
	return &Authenticator{
		identity:   identity,
		adminToken: adminToken,
		logger:     logger,
	}
}

// Require wraps next so it only runs for a resolved caller.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, models.ErrUnauthenticated.Error())
			return
		}

		identity, err := a.identity.Resolve(r.Context(), token)
		if err != nil {
			WriteDomainError(w, err, a.logger)
			return
		}

		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// RequireAdmin wraps next behind the X-Admin-Token header.
func (a *Authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" {
			WriteError(w, http.StatusForbidden, "Admin API disabled")
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			a.logger.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Rejected admin request")
			WriteError(w, http.StatusUnauthorized, models.ErrUnauthorized.Error())
			return
		}
		next(w, r)
	}
}
