package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	KalshiAPIKeyID    string
	KalshiPrivateKey  string // inline PEM or bare base64 key body
	KalshiPrivKeyPath string // used when KALSHI_PRIVATE_KEY is unset
	KalshiEnv         string // "prod" or "demo"
	ListenAddr        string // default ":8000"
	DBPath            string // default "./data/dashboard.db"
	CORSOrigins       []string
}

func (c *Config) BaseURL() string {
	if c.KalshiEnv == "prod" {
		return "https://api.elections.kalshi.com/trade-api/v2"
	}
	return "https://demo-api.kalshi.co/trade-api/v2"
}

func (c *Config) WSBaseURL() string {
	if c.KalshiEnv == "prod" {
		return "wss://api.elections.kalshi.com/trade-api/ws/v2"
	}
	return "wss://demo-api.kalshi.co/trade-api/ws/v2"
}

// PrivateKeyMaterial returns the raw key string, reading from
// KalshiPrivKeyPath when no inline key is configured.
func (c *Config) PrivateKeyMaterial() (string, error) {
	if c.KalshiPrivateKey != "" {
		return c.KalshiPrivateKey, nil
	}
	data, err := os.ReadFile(c.KalshiPrivKeyPath)
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return string(data), nil
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		KalshiAPIKeyID:    os.Getenv("KALSHI_API_KEY_ID"),
		KalshiPrivateKey:  os.Getenv("KALSHI_PRIVATE_KEY"),
		KalshiPrivKeyPath: getEnvDefault("KALSHI_PRIV_KEY_PATH", "./kalshi_private_key.pem"),
		KalshiEnv:         getEnvDefault("KALSHI_ENV", "prod"),
		ListenAddr:        getEnvDefault("LISTEN_ADDR", ":8000"),
		DBPath:            getEnvDefault("DB_PATH", "./data/dashboard.db"),
		CORSOrigins:       splitList(getEnvDefault("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
	}

	if cfg.KalshiAPIKeyID == "" {
		return nil, fmt.Errorf("KALSHI_API_KEY_ID is required")
	}
	if cfg.KalshiEnv != "prod" && cfg.KalshiEnv != "demo" {
		return nil, fmt.Errorf("KALSHI_ENV must be 'prod' or 'demo', got %q", cfg.KalshiEnv)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
