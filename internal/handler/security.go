package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

// Authenticator resolves API keys to principals. Keys are looked up by their
// HMAC-SHA256 under a server-side pepper.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate returns the principal owning key or auth.ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	hash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, hash)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return auth.Principal{}, auth.ErrUnauthorized
	case err != nil:
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}
	// The stored hash must match byte for byte.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	if info.UserID == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}

	return auth.Principal{
		KeyID:  info.ID,
		UserID: info.UserID,
		Scopes: info.Scopes,
	}, nil
}

// Middleware rejects requests without a valid api_key header and stores the
// principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := a.Authenticate(ctx, r.Header.Get(HeaderAPIKey))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(ctx).Error("Authenticate", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx = auth.WithPrincipal(ctx, p)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("user_id", p.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated callers lacking scope with 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !p.Has(scope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
