package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCookieName = "b2_session"
	userContextKey    = "user"
)

// User is the identity carried by a session token.
type User struct {
	ID    string
	Staff bool
}

type Claims struct {
	Staff bool `json:"staff,omitempty"`
	jwt.RegisteredClaims
}

// SessionAuth validates session tokens, either HMAC tokens minted with Issue or
// tokens signed by keys from a JWKS endpoint.
type SessionAuth struct {
	secret     []byte
	jwks       *JWKS
	CookieName string
}

func NewSessionAuth(secret string, jwks *JWKS) *SessionAuth {
	auth := &SessionAuth{jwks: jwks, CookieName: DefaultCookieName}
	if secret != "" {
		auth.secret = []byte(secret)
	}
	return auth
}

func (a *SessionAuth) Issue(user User, ttl time.Duration) (string, error) {
	if a.secret == nil {
		return "", errors.New("no session secret configured")
	}
	now := time.Now()
	claims := Claims{
		Staff: user.Staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *SessionAuth) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if a.secret == nil {
				return nil, errors.New("hmac tokens are not accepted")
			}
			return a.secret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodEd25519:
			if a.jwks == nil {
				return nil, fmt.Errorf("signature type %s is not valid", token.Header["alg"])
			}
			keyID, _ := token.Header["kid"].(string)
			return a.jwks.LookupKey(ctx, keyID)
		}
		return nil, fmt.Errorf("signature type %s is not valid", token.Header["alg"])
	}
}

func (a *SessionAuth) Parse(ctx context.Context, token string) (User, error) {
	claims := &Claims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, a.keyFunc(ctx))
	if err != nil {
		return User{}, err
	}
	if !parsedToken.Valid || claims.Subject == "" {
		return User{}, errors.New("token has no subject")
	}
	return User{ID: claims.Subject, Staff: claims.Staff}, nil
}

func (a *SessionAuth) tokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := c.Cookie(a.CookieName); err == nil {
		return cookie
	}
	return ""
}

// Middleware attaches the session user to the context. Requests without a
// valid token carry on anonymously.
func (a *SessionAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := a.tokenFromRequest(c); token != "" {
			user, err := a.Parse(c.Request.Context(), token)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to validate session token")
			} else {
				c.Set(userContextKey, user)
			}
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return User{}, false
	}
	user, ok := value.(User)
	return user, ok
}

// LoginRequired sends anonymous users to loginURL, or rejects them when there
// is none. Logged in users without staff are rejected when staff is required.
func LoginRequired(requireStaff bool, loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			if loginURL == "" {
				unauthorized(c)
				return
			}
			query := url.Values{"next": []string{c.Request.URL.Path}}
			c.Redirect(http.StatusFound, loginURL+"?"+strings.ReplaceAll(query.Encode(), "%2F", "/"))
			c.Abort()
			return
		}

		if requireStaff && !user.Staff {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Data(http.StatusUnauthorized, "text/plain; charset=utf-8", []byte("Unauthorized"))
	c.Abort()
}
