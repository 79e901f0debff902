package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	userauth "github.com/MrEthical07/goUserAuth"
	"github.com/MrEthical07/goUserAuth/permission"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the verified credential stored by Guard or
// Require. Routes guarded at permission.Public carry no result.
func AuthResultFromContext(ctx context.Context) (*userauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*userauth.AuthResult)
	return res, ok && res != nil
}

// Guard admits any request carrying a valid access credential.
func Guard(engine *userauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withClientIP(r)
			res, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require admits requests whose access credential carries at least level.
// A missing or invalid credential answers 401 and an insufficient level
// answers 403. permission.Public admits every request without reading the
// Authorization header.
func Require(engine *userauth.Engine, level permission.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withClientIP(r)
			if level == permission.Public {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Authorize(ctx, level, token)
			switch {
			case err == nil:
			case errors.Is(err, userauth.ErrForbidden):
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return r.Context()
	}
	return userauth.WithClientIP(r.Context(), host)
}
