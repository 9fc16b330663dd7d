package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// MaxPushTimeout bounds every outbound push call
const MaxPushTimeout = 10 * time.Second

// Config holds all configuration for the application
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	MinIO     MinIOConfig
	CORS      CORSConfig
	SMTP      SMTPConfig
	Push      PushConfig
	Glycemia  GlycemiaConfig
	Nutrition NutritionConfig
	Influx    InfluxConfig
	Kafka     KafkaConfig
}

type AppConfig struct {
	Env      string
	Port     string
	LogLevel string
	BaseURL  string
}

// IsProduction reports whether the app runs with production defaults
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// JWTConfig carries the two signing keys. Patient and doctor tokens are signed
// with Secret, administrative tokens with AdminSecret.
type JWTConfig struct {
	Secret      string
	AdminSecret string
	Expiry      time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CORSConfig drives the browser CORS policy. An Origins entry of "*"
// allows every origin.
type CORSConfig struct {
	Origins          []string
	Methods          []string
	Headers          []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// AllowsAll reports whether every origin is allowed
func (c CORSConfig) AllowsAll() bool {
	for _, o := range c.Origins {
		if o == "*" {
			return true
		}
	}
	return false
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type PushConfig struct {
	CredentialsFile string
	Timeout         time.Duration
}

type GlycemiaConfig struct {
	RetentionDays  int
	SweepInterval  time.Duration
	HypoThreshold  float64
	HyperThreshold float64
}

// Retention is the cache horizon as a duration
func (g GlycemiaConfig) Retention() time.Duration {
	return time.Duration(g.RetentionDays) * 24 * time.Hour
}

type NutritionConfig struct {
	CaloriesGoal float64
	CarbsGoal    float64
}

// InfluxConfig enables the time-series mirror when URL is set
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// KafkaConfig enables reading publication when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading from environment variables")
	}

	pushTimeout := getDuration("PUSH_TIMEOUT", 5*time.Second)
	if pushTimeout <= 0 || pushTimeout > MaxPushTimeout {
		pushTimeout = MaxPushTimeout
	}

	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnv("APP_PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			BaseURL:  getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "glycopilot"),
			Password: getEnv("DB_PASSWORD", "glycopilot"),
			Name:     getEnv("DB_NAME", "glycopilot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "default-secret"),
			AdminSecret: getEnv("JWT_ADMIN_SECRET", "default-admin-secret"),
			Expiry:      getDuration("JWT_EXPIRY", 24*time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "glycopilot-photos"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		CORS: CORSConfig{
			Origins:          splitNonEmpty(getEnv("CORS_ORIGINS", "http://localhost:3000")),
			Methods:          splitNonEmpty(getEnv("CORS_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			Headers:          splitNonEmpty(getEnv("CORS_HEADERS", "Origin,Content-Type,Accept,Authorization,X-Requested-With")),
			AllowCredentials: getEnv("CORS_ALLOW_CREDENTIALS", "true") == "true",
			MaxAge:           getDuration("CORS_MAX_AGE", 12*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "mailpit"),
			Port:     getEnv("SMTP_PORT", "1025"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@glycopilot.local"),
			FromName: getEnv("SMTP_FROM_NAME", "Glycopilot"),
		},
		Push: PushConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Timeout:         pushTimeout,
		},
		Glycemia: GlycemiaConfig{
			RetentionDays:  getInt("GLYCEMIA_RETENTION_DAYS", 30),
			SweepInterval:  getDuration("GLYCEMIA_SWEEP_INTERVAL", time.Hour),
			HypoThreshold:  getFloat("GLYCEMIA_HYPO_THRESHOLD", 70),
			HyperThreshold: getFloat("GLYCEMIA_HYPER_THRESHOLD", 180),
		},
		Nutrition: NutritionConfig{
			CaloriesGoal: getFloat("NUTRITION_CALORIES_GOAL", 1800),
			CarbsGoal:    getFloat("NUTRITION_CARBS_GOAL", 200),
		},
		Influx: InfluxConfig{
			URL:    getEnv("INFLUX_URL", ""),
			Token:  getEnv("INFLUX_TOKEN", ""),
			Org:    getEnv("INFLUX_ORG", "glycopilot"),
			Bucket: getEnv("INFLUX_BUCKET", "glucose"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "glycemia.readings"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
