package middleware

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// Authenticator verifies bearer tokens against the identity provider's
// published JWKS. Keys are resolved by kid and cached with a TTL so the
// JWKS endpoint is only consulted on unknown or rotated keys.
type Authenticator struct {
	jwksURL string
	client  *http.Client
	keys    *expirable.LRU[string, *ecdsa.PublicKey]
	logger  *logrus.Logger
}

// NewAuthenticator creates an authenticator for the configured identity
// provider.
func NewAuthenticator(cfg domain.AuthConfig, logger *logrus.Logger) *Authenticator {
	ttl := cfg.KeyCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Authenticator{
		jwksURL: strings.TrimRight(cfg.JWKSBaseURL, "/") + "/auth/v1/.well-known/jwks.json",
		client:  &http.Client{Timeout: 10 * time.Second},
		keys:    expirable.NewLRU[string, *ecdsa.PublicKey](16, nil, ttl),
		logger:  logger,
	}
}

// Middleware rejects requests without a valid ES256 bearer token and
// stores the token subject as the authenticated user id.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.authenticate(c)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":           c.Request.URL.Path,
				"correlation_id": c.GetString("correlation_id"),
				"error":          err.Error(),
			}).Warn("Rejected unauthenticated request")

			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.NewAPIError(
				domain.ErrCodeUnauthorized,
				"Authentication required",
				"",
				c.GetString("correlation_id"),
			))
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// UserID returns the subject stored by the auth middleware.
func UserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func (a *Authenticator) authenticate(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	var raw string
	switch {
	case strings.HasPrefix(header, prefix):
		raw = strings.TrimSpace(strings.TrimPrefix(header, prefix))
	case header == "":
		// Browser websocket clients cannot set request headers.
		raw = c.Query("token")
	}
	if raw == "" {
		return "", domain.ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, a.resolveKey(c.Request.Context()),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	return claims.Subject, nil
}

// resolveKey returns the verification key for a token's kid, consulting
// the cache before the JWKS endpoint.
func (a *Authenticator) resolveKey(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}

		if key, ok := a.keys.Get(kid); ok {
			return key, nil
		}

		return a.fetchKey(ctx, kid)
	}
}

// fetchKey downloads the JWKS document and caches every usable key in it.
// Rotations publish the new key alongside the old one, so one fetch warms
// the cache for both.
func (a *Authenticator) fetchKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building JWKS request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned HTTP %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	var found *ecdsa.PublicKey
	for _, k := range doc.Keys {
		key, err := k.publicKey()
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"kid":   k.Kid,
				"error": err.Error(),
			}).Warn("Skipping unusable JWKS key")
			continue
		}
		a.keys.Add(k.Kid, key)
		if k.Kid == kid {
			found = key
		}
	}

	if found == nil {
		return nil, fmt.Errorf("no key with id %q in JWKS", kid)
	}
	return found, nil
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwksKey) publicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("decoding x coordinate: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("decoding y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}
