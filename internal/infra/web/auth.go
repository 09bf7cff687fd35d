package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
)

// AuthManager issues and validates the session JWT carrying the user id.
// Tokens are accepted from the Authorization header or the session cookie.
type AuthManager struct {
	secret       []byte
	cookieName   string
	cookieDomain string
	secureCookie bool
	ttl          time.Duration
}

func NewAuthManager(cfg *config.AuthConfig) *AuthManager {
	return &AuthManager{
		secret:       []byte(cfg.JWTSecret),
		cookieName:   cfg.CookieName,
		cookieDomain: cfg.CookieDomain,
		secureCookie: cfg.SecureCookie,
		ttl:          cfg.TTL,
	}
}

type UserClaims struct {
	jwt.RegisteredClaims
}

func (c *UserClaims) UserID() string { return c.Subject }

// Mint signs a session token for userID and sets it as the session cookie.
func (a *AuthManager) Mint(w http.ResponseWriter, userID string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    signed,
		Path:     "/",
		Domain:   a.cookieDomain,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	return signed, nil
}

func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		Domain:   a.cookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// ParseFromRequest extracts and validates the session token.
// Authorization: Bearer <jwt> wins over the cookie.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*UserClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*UserClaims, error) {
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type ctxKey string

const ctxUser ctxKey = "auth_user"

func withAuthUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUser, userID)
}

// AuthedUser returns the authenticated user id placed by the auth middleware.
func AuthedUser(ctx context.Context) string {
	if v := ctx.Value(ctxUser); v != nil {
		return v.(string)
	}
	return ""
}
