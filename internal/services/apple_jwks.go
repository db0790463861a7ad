package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleJWKSURL        = "https://appleid.apple.com/auth/keys"
	appleJWKSTTL        = 24 * time.Hour
	appleJWKSMinRefetch = time.Minute
)

// AppleJWKSClient caches Apple's signing keys. Keys are refetched when the
// cache expires or when a token names a key the cache does not hold.
type AppleJWKSClient struct {
	mu        sync.RWMutex
	jwks      *keyfunc.JWKS
	fetchedAt time.Time

	httpClient *http.Client
	jwksURL    string
}

func NewAppleJWKSClient(jwksURL string, timeout time.Duration) *AppleJWKSClient {
	if jwksURL == "" {
		jwksURL = appleJWKSURL
	}
	return &AppleJWKSClient{
		httpClient: &http.Client{Timeout: timeout},
		jwksURL:    jwksURL,
	}
}

// Keyfunc resolves the verification key for an Apple identity token.
func (c *AppleJWKSClient) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		jwks, err := c.current(ctx)
		if err != nil {
			return nil, err
		}
		key, err := jwks.Keyfunc(token)
		if err == nil {
			return key, nil
		}

		// Apple rotates keys; retry once against a fresh set.
		c.mu.RLock()
		stale := time.Since(c.fetchedAt) > appleJWKSMinRefetch
		c.mu.RUnlock()
		if !stale {
			return nil, err
		}
		if jwks, err = c.refresh(ctx); err != nil {
			return nil, err
		}
		return jwks.Keyfunc(token)
	}
}

func (c *AppleJWKSClient) current(ctx context.Context) (*keyfunc.JWKS, error) {
	c.mu.RLock()
	if c.jwks != nil && time.Since(c.fetchedAt) < appleJWKSTTL {
		jwks := c.jwks
		c.mu.RUnlock()
		return jwks, nil
	}
	c.mu.RUnlock()
	return c.refresh(ctx)
}

func (c *AppleJWKSClient) refresh(ctx context.Context) (*keyfunc.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}
	jwks, err := keyfunc.NewJSON(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	c.mu.Lock()
	c.jwks = jwks
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return jwks, nil
}
