// Package auth выдаёт и проверяет JWT для REST API симуляции.
// Клиент обменивает API-ключ на токен с ограниченным сроком жизни.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidAPIKey = errors.New("auth: invalid api key")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrWeakSecret    = errors.New("auth: secret key must be at least 32 bytes")
)

const issuer = "arena-combat"

// Claims represents JWT claims
type Claims struct {
	ClientID string `json:"client_id"`
	Operator bool   `json:"operator"` // право менять состояние симуляции
	jwt.RegisteredClaims
}

type apiKey struct {
	client string
	key    []byte
}

// TokenIssuer выпускает HS256-токены в обмен на API-ключи
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	keys   []apiKey
	now    func() time.Time
}

// NewTokenIssuer создаёт выпускающего. Пустой secret — случайный ключ на время жизни процесса.
// apiKeys задаются как "client:key" или просто "key".
func NewTokenIssuer(secret string, ttl time.Duration, apiKeys []string) (*TokenIssuer, error) {
	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	} else {
		key = []byte(secret)
		if len(key) < 32 {
			return nil, ErrWeakSecret
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	ti := &TokenIssuer{secret: key, ttl: ttl, now: time.Now}
	for i, entry := range apiKeys {
		client, k, ok := strings.Cut(entry, ":")
		if !ok {
			client, k = fmt.Sprintf("client-%d", i+1), entry
		}
		if k == "" {
			return nil, fmt.Errorf("api key #%d is empty", i+1)
		}
		ti.keys = append(ti.keys, apiKey{client: client, key: []byte(k)})
	}
	return ti, nil
}

// Enabled без API-ключей REST API работает без авторизации
func (ti *TokenIssuer) Enabled() bool {
	return len(ti.keys) > 0
}

// Exchange проверяет API-ключ и выпускает токен оператора
func (ti *TokenIssuer) Exchange(key string) (string, time.Time, error) {
	for _, k := range ti.keys {
		if subtle.ConstantTimeCompare(k.key, []byte(key)) == 1 {
			return ti.Issue(k.client, true)
		}
	}
	return "", time.Time{}, ErrInvalidAPIKey
}

// Issue creates a signed token for the client
func (ti *TokenIssuer) Issue(clientID string, operator bool) (string, time.Time, error) {
	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := &Claims{
		ClientID: clientID,
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   clientID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate checks token validity and returns its claims
func (ti *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(ti.now))

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
