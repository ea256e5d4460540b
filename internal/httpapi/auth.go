package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/safar/farmstand/internal/apperr"
	"github.com/safar/farmstand/internal/models"
)

type identityKey struct{}

// Claims is the bearer token payload. Subject holds the account id.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves bearer tokens into identities.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for an account. The API itself does not log
// users in; this serves operators and tests.
func (a *Authenticator) IssueToken(userID int64, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns the identity it carries.
func (a *Authenticator) Parse(token string) (models.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.Identity{}, errors.New("token subject is not an account id")
	}
	if !claims.Role.Valid() || claims.Role == models.RoleGuest {
		return models.Identity{}, errors.New("token carries an unknown role")
	}
	return models.Identity{UserID: id, Role: claims.Role}, nil
}

// Middleware attaches the caller's identity to the request context.
// Requests without a token proceed as guests; a bad token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := models.Identity{Role: models.RoleGuest}

		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeStatus(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}
			parsed, err := a.Parse(strings.TrimSpace(token))
			if err != nil {
				writeStatus(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			identity = parsed
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller, defaulting to a guest.
func IdentityFrom(ctx context.Context) models.Identity {
	if identity, ok := ctx.Value(identityKey{}).(models.Identity); ok {
		return identity
	}
	return models.Identity{Role: models.RoleGuest}
}

// Require rejects callers whose role does not hold the permission.
func Require(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			if !Allowed(p, identity.Role) {
				if identity.Role == models.RoleGuest {
					writeStatus(w, http.StatusUnauthorized, "authentication required")
					return
				}
				writeError(r.Context(), w, apperr.Forbidden("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
