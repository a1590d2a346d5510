package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// 不安全的默认值列表 (生产环境不应使用)
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"admin":                                true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Panel          PanelConfig
	Provision      ProvisionConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

// PanelConfig holds the remote proxy-panel credentials. One service instance
// fronts one physical panel server.
type PanelConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// ProvisionConfig is the state-machine policy.
type ProvisionConfig struct {
	MaxAttempts       int
	DefaultSSMethod   string
	DefaultExpireDays int
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"), // 默认为 release 模式
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "saas_user"),
			Password: getEnv("DB_PASSWORD", "saas_pass"),
			DBName:   getEnv("DB_NAME", "saas_db"),
			Schema:   getEnv("DB_SCHEMA", "provisioning"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Panel: PanelConfig{
			BaseURL:  getEnv("PANEL_URL", "http://localhost:2053"),
			Username: getEnv("PANEL_USERNAME", ""),
			Password: getEnv("PANEL_PASSWORD", ""),
			Timeout:  time.Duration(getEnvInt("PANEL_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Provision: ProvisionConfig{
			MaxAttempts:       getEnvInt("PROVISION_MAX_ATTEMPTS", 3),
			DefaultSSMethod:   getEnv("PROVISION_SS_METHOD", "aes-256-gcm"),
			DefaultExpireDays: getEnvInt("PROVISION_DEFAULT_EXPIRE_DAYS", 30),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	// 日志脱敏: 不记录敏感配置
	log.Printf("[config] Provisioning Service loaded: port=%s db=%s/%s.%s panel=%s",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema, cfg.Panel.BaseURL)

	return cfg
}

// Validate 验证配置有效性，生产环境必须设置安全的密钥
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Panel.Username == "" || insecureDefaults[c.Panel.Password] {
		return fmt.Errorf("PANEL_USERNAME and PANEL_PASSWORD must be set")
	}

	if c.Provision.MaxAttempts < 1 {
		return fmt.Errorf("PROVISION_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
