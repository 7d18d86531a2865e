package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// OAuthProviderConfig holds one provider's OAuth2 client registration.
type OAuthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
}

type OAuthConfig struct {
	Gmail   OAuthProviderConfig `yaml:"gmail"`
	Outlook OAuthProviderConfig `yaml:"outlook"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type SyncConfig struct {
	RetentionDays int `yaml:"retention_days"`
	CacheMax      int `yaml:"cache_max"`
	PageLimit     int `yaml:"page_limit"`
}

type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxEvents     int `yaml:"max_events"`
}

type Config struct {
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	MQ        MQConfig        `yaml:"mq"`
	JWT       JWTConfig       `yaml:"jwt"`
	Server    ServerConfig    `yaml:"server"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Sync      SyncConfig      `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Webhook.Secret = secret
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}

	if id := os.Getenv("GMAIL_CLIENT_ID"); id != "" {
		cfg.OAuth.Gmail.ClientID = id
	}
	if secret := os.Getenv("GMAIL_CLIENT_SECRET"); secret != "" {
		cfg.OAuth.Gmail.ClientSecret = secret
	}
	if id := os.Getenv("OUTLOOK_CLIENT_ID"); id != "" {
		cfg.OAuth.Outlook.ClientID = id
	}
	if secret := os.Getenv("OUTLOOK_CLIENT_SECRET"); secret != "" {
		cfg.OAuth.Outlook.ClientSecret = secret
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.RetentionDays <= 0 {
		cfg.Sync.RetentionDays = 30
	}
	if cfg.Sync.CacheMax <= 0 {
		cfg.Sync.CacheMax = 5000
	}
	if cfg.Sync.PageLimit <= 0 {
		cfg.Sync.PageLimit = 50
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.MaxEvents <= 0 {
		cfg.RateLimit.MaxEvents = 60
	}
}
