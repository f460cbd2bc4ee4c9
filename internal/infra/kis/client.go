package kis

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wonny/aegis-strategy/internal/pkg/config"
)

const (
	PaperBaseURL = "https://openapivts.koreainvestment.com:29443" // 모의투자
	RealBaseURL  = "https://openapi.koreainvestment.com:9443"     // 실전투자
)

// Config holds KIS API configuration
type Config struct {
	AppKey    string
	AppSecret string
	AccountNo string // XXXXXXXX-XX
	BaseURL   string
	IsPaper   bool
}

// ConfigFrom builds the client configuration, selecting the base URL from the paper flag
// unless an explicit override is set
func ConfigFrom(cfg config.KISConfig) Config {
	baseURL := RealBaseURL
	if cfg.IsPaper {
		baseURL = PaperBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return Config{
		AppKey:    cfg.AppKey,
		AppSecret: cfg.AppSecret,
		AccountNo: cfg.AccountNo,
		BaseURL:   baseURL,
		IsPaper:   cfg.IsPaper,
	}
}

// Validate checks the credentials needed for live calls
func (c Config) Validate() error {
	if c.AppKey == "" || c.AppSecret == "" {
		return fmt.Errorf("KIS_APP_KEY / KIS_APP_SECRET not set")
	}
	if _, _, err := splitAccount(c.AccountNo); err != nil {
		return err
	}
	return nil
}

// Client wraps the KIS API clients
type Client struct {
	Auth *AuthClient
	REST *RESTClient
}

// NewClient creates a new KIS Client
func NewClient(cfg Config) *Client {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	auth := NewAuthClient(cfg.AppKey, cfg.AppSecret, cfg.BaseURL, httpClient)
	return &Client{
		Auth: auth,
		REST: NewRESTClient(auth, cfg.BaseURL, cfg.IsPaper, httpClient),
	}
}

// splitAccount parses "XXXXXXXX-XX" into account number and product code
func splitAccount(accountNo string) (string, string, error) {
	parts := strings.Split(accountNo, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid account number format: %q (expected XXXXXXXX-XX)", accountNo)
	}
	return parts[0], parts[1], nil
}
