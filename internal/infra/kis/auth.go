package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	tokenLifetime    = 24 * time.Hour
	tokenRefreshRule = 6*time.Hour - 5*time.Minute // KIS: 6시간 내 재발급 시 기존 토큰 반환
	tokenExpiryGrace = 30 * time.Second
	rateLimitHold    = 65 * time.Second // EGW00133: 1분당 1회 + 버퍼
)

// AuthClient issues and caches the KIS OAuth access token
type AuthClient struct {
	appKey    string
	appSecret string
	baseURL   string

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	nextRefresh time.Time
	holdUntil   time.Time

	sf         singleflight.Group
	httpClient *http.Client
	now        func() time.Time
}

// NewAuthClient creates a new AuthClient
func NewAuthClient(appKey, appSecret, baseURL string, httpClient *http.Client) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthClient{
		appKey:     appKey,
		appSecret:  appSecret,
		baseURL:    baseURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// GetAccessToken returns a valid token, fetching a new one when needed.
// Concurrent callers share one refresh.
func (c *AuthClient) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, ok := c.cachedLocked(c.now())
	c.mu.RUnlock()
	if ok {
		return token, nil
	}

	v, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cachedLocked returns the cached token if it may still be used
func (c *AuthClient) cachedLocked(now time.Time) (string, bool) {
	if c.accessToken == "" {
		return "", false
	}
	if now.Before(c.expiresAt.Add(-tokenExpiryGrace)) && now.Before(c.nextRefresh) {
		return c.accessToken, true
	}
	// 재발급 제한 중에는 만료 전 토큰 계속 사용
	if now.Before(c.holdUntil) && now.Before(c.expiresAt) {
		return c.accessToken, true
	}
	return "", false
}

func (c *AuthClient) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if token, ok := c.cachedLocked(now); ok {
		return token, nil
	}
	if now.Before(c.holdUntil) {
		return "", fmt.Errorf("token refresh on hold until %s (KIS rate limit)", c.holdUntil.Format(time.RFC3339))
	}

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isRateLimited(string(respBody)) {
			c.holdUntil = c.now().Add(rateLimitHold)
			log.Warn().Time("hold_until", c.holdUntil).Msg("KIS token rate limited")
		}
		return "", fmt.Errorf("KIS token error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("KIS token error: empty access_token")
	}

	issued := c.now()
	c.accessToken = tr.AccessToken
	c.expiresAt = issued.Add(tokenLifetime)
	c.nextRefresh = issued.Add(tokenRefreshRule)

	log.Info().Time("expires_at", c.expiresAt).Msg("✅ KIS access token issued")
	return c.accessToken, nil
}

func isRateLimited(body string) bool {
	return strings.Contains(body, "EGW00133") || strings.Contains(body, "1분당 1회")
}

// ClearToken drops the cached token
func (c *AuthClient) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.nextRefresh = time.Time{}
	c.holdUntil = time.Time{}
}
