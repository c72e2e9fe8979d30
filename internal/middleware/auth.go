package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	log "github.com/sirupsen/logrus"
)

// Auth issues and verifies the bearer tokens protecting the management
// surface. Feed, audio and image endpoints stay public so podcast clients
// can fetch them.
type Auth struct {
	secret   []byte
	password string
	tokenTTL time.Duration
}

func NewAuth(secret, password string, tokenTTL time.Duration) *Auth {
	return &Auth{secret: []byte(secret), password: password, tokenTTL: tokenTTL}
}

// IssueToken returns a signed token when the supplied password matches.
func (a *Auth) IssueToken(password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", jwt.NewValidationError("invalid credentials", jwt.ValidationErrorSignatureInvalid)
	}
	claims := jwt.StandardClaims{
		Subject:   "admin",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(a.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims := jwt.StandardClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			log.Warnf("rejected token: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
