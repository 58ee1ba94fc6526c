package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/paasforest/proconnect-access/internal/http/apierror"
	"github.com/paasforest/proconnect-access/internal/identity"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

func bearerClaims(r *http.Request, secret string) (*jwt.RegisteredClaims, string) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return nil, "missing authorization header"
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, "invalid token"
	}
	return claims, ""
}

// AdminJWT enforces an HMAC-signed JWT for admin endpoints.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "admin auth disabled")
				return
			}
			claims, msg := bearerClaims(r, secret)
			if claims == nil {
				apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msg)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

// AdminID is the subject of the admin token, or "admin" when it has none.
func AdminID(ctx context.Context) string {
	if claims, ok := AdminClaimsFromContext(ctx); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "admin"
}

// ProviderJWT authenticates providers. The token subject is the provider id
// and is stored with identity.WithProviderID.
func ProviderJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "provider auth disabled")
				return
			}
			claims, msg := bearerClaims(r, secret)
			if claims == nil {
				apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, msg)
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				apierror.WriteCode(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "token has no subject")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithProviderID(r.Context(), claims.Subject)))
		})
	}
}
