package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnknownKey is returned by a KeyStore when no key has the hash.
	ErrUnknownKey = errors.New("unknown api key")
	// ErrUnauthenticated means no credential on the request was accepted.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Auth methods recorded on a Principal.
const (
	MethodAPIKey    = "api_key"
	MethodSignature = "signature"
	MethodJWT       = "jwt"
)

// KeyStore resolves hashed API keys to their owning user.
type KeyStore interface {
	OwnerOfKeyHash(ctx context.Context, hash string) (string, error)
}

// Principal is the authenticated caller. UserID is empty for signed requests;
// those must name the user in the body.
type Principal struct {
	UserID string
	Method string
}

// Claims are the bearer token claims issued by the auth provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator checks, in order, an API key, an HMAC body signature and a
// bearer JWT. A nil KeyStore or empty secret disables that method.
type Authenticator struct {
	keys       KeyStore
	hmacSecret []byte
	jwtSecret  []byte
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(keys KeyStore, hmacSecret, jwtSecret string) *Authenticator {
	return &Authenticator{keys: keys, hmacSecret: []byte(hmacSecret), jwtSecret: []byte(jwtSecret)}
}

// HashKey returns the hex SHA-256 of an API key as stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate identifies the caller of r, whose raw body is body.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, body []byte) (*Principal, error) {
	token := bearer(r)

	key := strings.TrimSpace(r.Header.Get("x-api-key"))
	if key == "" && token != "" && strings.Count(token, ".") != 2 {
		key = token
	}
	if key != "" && a.keys != nil {
		owner, err := a.keys.OwnerOfKeyHash(ctx, HashKey(key))
		switch {
		case err == nil:
			return &Principal{UserID: owner, Method: MethodAPIKey}, nil
		case !errors.Is(err, ErrUnknownKey):
			return nil, fmt.Errorf("api key lookup: %w", err)
		}
	}

	if sig := strings.TrimSpace(r.Header.Get("x-signature")); sig != "" && len(a.hmacSecret) > 0 {
		want := Sign(a.hmacSecret, body)
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(want)) {
			return &Principal{Method: MethodSignature}, nil
		}
	}

	if token != "" && len(a.jwtSecret) > 0 {
		if sub, ok := a.verifyJWT(token); ok {
			return &Principal{UserID: sub, Method: MethodJWT}, nil
		}
	}
	return nil, ErrUnauthenticated
}

func (a *Authenticator) verifyJWT(tokenStr string) (string, bool) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
