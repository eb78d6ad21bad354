package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  string        `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// IMAPConfig holds the mailbox connection settings
type IMAPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	Secure             bool          `mapstructure:"secure"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Mailbox            string        `mapstructure:"mailbox"`
	PollMS             int           `mapstructure:"poll_ms"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	Subject            string        `mapstructure:"subject"`
	TestAddress        string        `mapstructure:"test_address"`
	OAuth2             OAuth2Config  `mapstructure:"oauth2"`
}

// OAuth2Config enables OAUTHBEARER authentication when a refresh token is set
type OAuth2Config struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// IngestConfig holds orchestrator settings
type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

// RedisConfig holds the optional record cache settings
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StatsConfig holds the statistics refresher schedule
type StatsConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadConfig loads configuration from .env, an optional config file and the environment
func LoadConfig() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or its parent, if present.
// Variables already set in the environment win.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "mail-chain-analyzer.db")

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.secure", true)
	v.SetDefault("imap.insecure_skip_verify", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.poll_ms", 30000)
	v.SetDefault("imap.reconnect_delay", "10s")
	v.SetDefault("imap.subject", "")

	v.SetDefault("ingest.workers", 4)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("stats.schedule", "0 */1 * * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.cors_origins", "CORS_ORIGINS")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// IMAP
	v.BindEnv("imap.host", "IMAP_HOST")
	v.BindEnv("imap.port", "IMAP_PORT")
	v.BindEnv("imap.user", "IMAP_USER")
	v.BindEnv("imap.password", "IMAP_PASS")
	v.BindEnv("imap.secure", "IMAP_SECURE")
	v.BindEnv("imap.insecure_skip_verify", "IMAP_TLS_SKIP_VERIFY")
	v.BindEnv("imap.mailbox", "IMAP_MAILBOX")
	v.BindEnv("imap.poll_ms", "IMAP_POLL_MS")
	v.BindEnv("imap.reconnect_delay", "IMAP_RECONNECT_DELAY")
	v.BindEnv("imap.subject", "TEST_EMAIL_SUBJECT")
	v.BindEnv("imap.test_address", "TEST_EMAIL_ADDRESS")
	v.BindEnv("imap.oauth2.client_id", "IMAP_OAUTH2_CLIENT_ID")
	v.BindEnv("imap.oauth2.client_secret", "IMAP_OAUTH2_CLIENT_SECRET")
	v.BindEnv("imap.oauth2.refresh_token", "IMAP_OAUTH2_REFRESH_TOKEN")

	// Ingestion
	v.BindEnv("ingest.workers", "INGEST_WORKERS")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.ttl", "REDIS_TTL")

	// Stats
	v.BindEnv("stats.schedule", "STATS_SCHEDULE")

	// Logging
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
	v.BindEnv("log.file", "LOG_FILE")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Address returns host:port of the mail server
func (c *IMAPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UseOAuth2 reports whether the mailbox authenticates with a bearer token
func (c *IMAPConfig) UseOAuth2() bool {
	return c.OAuth2.RefreshToken != ""
}

// PollInterval is accepted for compatibility but not used: ingestion is
// driven by server pushes and the search that follows every connect.
func (c *IMAPConfig) PollInterval() time.Duration {
	return time.Duration(c.PollMS) * time.Millisecond
}

// DisplayAddress is the mailbox address shown to operators
func (c *IMAPConfig) DisplayAddress() string {
	if c.TestAddress != "" {
		return c.TestAddress
	}
	return c.User
}

// AllowedOrigins splits the comma separated CORS origin list
func (c *ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.IMAP.Host == "" || c.IMAP.User == "" {
		return fmt.Errorf("IMAP host and user are required")
	}

	if c.IMAP.Password == "" && !c.IMAP.UseOAuth2() {
		return fmt.Errorf("IMAP password or OAuth2 refresh token is required")
	}

	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("IMAP port %d is out of range", c.IMAP.Port)
	}

	if c.IMAP.Mailbox == "" {
		return fmt.Errorf("IMAP mailbox is required")
	}

	if c.IMAP.ReconnectDelay <= 0 {
		return fmt.Errorf("IMAP reconnect delay must be greater than 0")
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest workers must be at least 1")
	}

	if c.Stats.Schedule == "" {
		return fmt.Errorf("stats schedule is required")
	}

	return nil
}
