package config

import (
	"fmt"
	"os"

	"channelpress/pkg/crypto"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	XConsumerKey          string
	XConsumerSecret       string
	XRedirectURI          string
	FacebookClientID      string
	FacebookClientSecret  string
	FacebookRedirectURI   string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	TiktokClientKey       string
	TiktokClientSecret    string
	TiktokRedirectURI     string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	LinkedinClientID      string
	LinkedinClientSecret  string
	LinkedinRedirectURI   string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	SecretKey             string
	// CipherKey encrypts stored provider credentials. Exactly 32 bytes.
	CipherKey  string
	CookieName string
}

func LoadConfig() *Config {
	return &Config{
		XConsumerKey:          getEnv("X_CONSUMER_KEY", ""),
		XConsumerSecret:       getEnv("X_CONSUMER_SECRET", ""),
		XRedirectURI:          getEnv("X_REDIRECT_URI", ""),
		FacebookClientID:      getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret:  getEnv("FACEBOOK_CLIENT_SECRET", ""),
		FacebookRedirectURI:   getEnv("FACEBOOK_REDIRECT_URI", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:     getEnv("TIKTOK_REDIRECT_URI", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedinRedirectURI:   getEnv("LINKEDIN_REDIRECT_URI", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CipherKey:  getEnv("CIPHER_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "channelpress_session"),
	}
}

// Validate catches misconfiguration at startup instead of on the first
// request that needs the value.
func (c *Config) Validate() error {
	if len(c.CipherKey) != crypto.KeySize {
		return fmt.Errorf("CIPHER_KEY must be exactly %d bytes, got %d", crypto.KeySize, len(c.CipherKey))
	}
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.PostgresURI == "" {
		return fmt.Errorf("POSTGRES_URI is required")
	}
	if c.RedisURI == "" {
		return fmt.Errorf("REDIS_URI is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
