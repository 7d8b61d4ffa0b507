package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database     DatabaseConfig
	JWT          JWTConfig
	App          AppConfig
	CORS         CORSConfig
	Policy       PolicyConfig
	Sweep        SweepConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	SMTP         SMTPConfig
	Storage      StorageConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
	LoginSession LoginSessionConfig
}

type DatabaseConfig struct {
	Driver      string // postgres | memory
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	RefreshExpiration string
	AccessExpiration  string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
	Timezone string
	BaseURL  string

	// SeedPassword, when set, creates one demo account per role at startup.
	SeedPassword string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// PolicyConfig holds the leave and permission business constants.
type PolicyConfig struct {
	AnnualLeaveDays       int
	MonthlyPermissionDays int
	MinLeaveDays          int
	MaxPermissionDays     int
	HalfDayMaxHours       float64
	FullDayMaxHours       float64
	HoursPerDay           float64
	MaxAttachmentBytes    int64
	MaxAttachments        int
}

type SweepConfig struct {
	Interval time.Duration
	Enabled  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type StorageConfig struct {
	BasePath string
}

type NotificationConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	WorkerCount   int
	QueueSize     int
}

type RateLimitConfig struct {
	SubmitPerSecond float64
	SubmitBurst     int
}

type LoginSessionConfig struct {
	TTL             time.Duration
	MaxCodeAttempts int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	} else if err != nil {
		log.Println("No .env file found, using process environment")
	}

	config := &Config{}
	var err error

	// Database configuration
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := getEnvBool("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	config.Database = DatabaseConfig{
		Driver:      getEnv("DB_DRIVER", "postgres"),
		Host:        getEnv("DB_HOST", "localhost"),
		Port:        dbPort,
		User:        getEnv("DB_USER", "postgres"),
		Password:    getEnv("DB_PASSWORD", ""),
		Name:        getEnv("DB_NAME", "training_center"),
		SSLMode:     getEnv("DB_SSL_MODE", "disable"),
		AutoMigrate: autoMigrate,
	}

	// Application configuration
	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("APP_TIMEZONE", "Europe/Paris"),
		BaseURL:  getEnv("APP_BASE_URL", "http://localhost:8080"),

		SeedPassword: getEnv("SEED_DEMO_PASSWORD", ""),
	}

	config.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:            getEnv("JWT_SECRET_KEY", ""),
		RefreshExpiration: getEnv("JWT_REFRESH_EXPIRATION_TIME", "168h"),
		AccessExpiration:  getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	if config.Policy, err = loadPolicy(); err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	sweepEnabled, err := getEnvBool("SWEEP_ENABLED", true)
	if err != nil {
		return nil, err
	}
	config.Sweep = SweepConfig{Interval: sweepInterval, Enabled: sweepEnabled}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	config.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
	}

	config.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS", nil),
		Topic:   getEnv("KAFKA_ABSENCE_TOPIC", "absence.status_changed"),
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     smtpPort,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "no-reply@training-center.local"),
		FromName: getEnv("SMTP_FROM_NAME", "Training Center"),
	}

	config.Storage = StorageConfig{
		BasePath: getEnv("STORAGE_BASE_PATH", "./uploads"),
	}

	if config.Notification, err = loadNotification(); err != nil {
		return nil, err
	}

	submitRate, err := getEnvFloat("RATE_LIMIT_SUBMIT_PER_SECOND", 1)
	if err != nil {
		return nil, err
	}
	submitBurst, err := getEnvInt("RATE_LIMIT_SUBMIT_BURST", 5)
	if err != nil {
		return nil, err
	}
	config.RateLimit = RateLimitConfig{SubmitPerSecond: submitRate, SubmitBurst: submitBurst}

	sessionTTL, err := getEnvDuration("LOGIN_SESSION_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getEnvInt("LOGIN_CODE_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	config.LoginSession = LoginSessionConfig{TTL: sessionTTL, MaxCodeAttempts: maxAttempts}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadPolicy() (PolicyConfig, error) {
	var p PolicyConfig
	var err error
	if p.AnnualLeaveDays, err = getEnvInt("POLICY_ANNUAL_LEAVE_DAYS", 30); err != nil {
		return p, err
	}
	if p.MonthlyPermissionDays, err = getEnvInt("POLICY_MONTHLY_PERMISSION_DAYS", 5); err != nil {
		return p, err
	}
	if p.MinLeaveDays, err = getEnvInt("POLICY_MIN_LEAVE_DAYS", 10); err != nil {
		return p, err
	}
	if p.MaxPermissionDays, err = getEnvInt("POLICY_MAX_PERMISSION_DAYS", 5); err != nil {
		return p, err
	}
	if p.HalfDayMaxHours, err = getEnvFloat("POLICY_HALF_DAY_MAX_HOURS", 4); err != nil {
		return p, err
	}
	if p.FullDayMaxHours, err = getEnvFloat("POLICY_FULL_DAY_MAX_HOURS", 8); err != nil {
		return p, err
	}
	if p.HoursPerDay, err = getEnvFloat("POLICY_HOURS_PER_DAY", 8); err != nil {
		return p, err
	}
	maxBytes, err := getEnvInt("POLICY_MAX_ATTACHMENT_BYTES", 5<<20)
	if err != nil {
		return p, err
	}
	p.MaxAttachmentBytes = int64(maxBytes)
	if p.MaxAttachments, err = getEnvInt("POLICY_MAX_ATTACHMENTS", 5); err != nil {
		return p, err
	}
	return p, nil
}

func loadNotification() (NotificationConfig, error) {
	var n NotificationConfig
	var err error
	if n.BatchSize, err = getEnvInt("NOTIFICATION_BATCH_SIZE", 100); err != nil {
		return n, err
	}
	if n.FlushInterval, err = getEnvDuration("NOTIFICATION_FLUSH_INTERVAL", 500*time.Millisecond); err != nil {
		return n, err
	}
	if n.WorkerCount, err = getEnvInt("NOTIFICATION_WORKER_COUNT", 3); err != nil {
		return n, err
	}
	if n.QueueSize, err = getEnvInt("NOTIFICATION_QUEUE_SIZE", 10000); err != nil {
		return n, err
	}
	return n, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	p := c.Policy
	if p.AnnualLeaveDays <= 0 || p.MonthlyPermissionDays <= 0 {
		return fmt.Errorf("quota allotments must be positive")
	}
	if p.HalfDayMaxHours <= 0 || p.FullDayMaxHours <= p.HalfDayMaxHours {
		return fmt.Errorf("POLICY_FULL_DAY_MAX_HOURS must be greater than POLICY_HALF_DAY_MAX_HOURS")
	}
	if p.HoursPerDay <= 0 {
		return fmt.Errorf("POLICY_HOURS_PER_DAY must be positive")
	}
	if p.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("POLICY_MAX_ATTACHMENT_BYTES must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// AbsencePolicy converts the policy settings for the absence engine.
func (c *Config) AbsencePolicy() absence.Policy {
	p := c.Policy
	return absence.Policy{
		AnnualLeaveAllotment:       decimal.NewFromInt(int64(p.AnnualLeaveDays)),
		MonthlyPermissionAllotment: decimal.NewFromInt(int64(p.MonthlyPermissionDays)),
		MinLeaveDays:               decimal.NewFromInt(int64(p.MinLeaveDays)),
		MaxPermissionDays:          decimal.NewFromInt(int64(p.MaxPermissionDays)),
		HalfDayMaxHours:            decimal.NewFromFloat(p.HalfDayMaxHours),
		FullDayMaxHours:            decimal.NewFromFloat(p.FullDayMaxHours),
		HoursPerDay:                decimal.NewFromFloat(p.HoursPerDay),
		MaxAttachmentBytes:         p.MaxAttachmentBytes,
		MaxAttachments:             p.MaxAttachments,
		Location:                   c.Location(),
	}
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvSlice(env string, fallback []string) []string {
	value := getEnv(env, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
