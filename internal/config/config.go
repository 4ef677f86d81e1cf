package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scheduler lock modes
const (
	LockNone  = "none"
	LockRedis = "redis"
)

// Config holds application configuration
type Config struct {
	Port      string `yaml:"port"`
	DBConn    string `yaml:"db_conn"`
	LogLevel  string `yaml:"log_level"`
	JWTSecret string `yaml:"jwt_secret"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SenderEmail  string `yaml:"sender_email"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PushChannel   string `yaml:"push_channel"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Outbox    OutboxConfig    `yaml:"outbox"`

	EmailTemplatesFile string `yaml:"email_templates_file"`
}

// SchedulerConfig controls the contract date and payment due jobs
type SchedulerConfig struct {
	ContractCheckSpec    string        `yaml:"contract_check_spec"`
	PaymentCheckInterval time.Duration `yaml:"payment_check_interval"`
	ContractLeadDays     int           `yaml:"contract_lead_days"`
	PaymentReminderLead  time.Duration `yaml:"payment_reminder_lead"`
	Lock                 string        `yaml:"lock"`
	LockTTL              time.Duration `yaml:"lock_ttl"`
}

// OutboxConfig controls the notification dispatcher
type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
}

func defaults() *Config {
	return &Config{
		Port:        "8080",
		DBConn:      "host=localhost port=5436 user=test password=test dbname=contracts sslmode=disable",
		LogLevel:    "INFO",
		JWTSecret:   "secret",
		SMTPHost:    "localhost",
		SMTPPort:    "1025",
		SenderEmail: "no-reply@contracts.local",
		RedisAddr:   "localhost:6379",
		PushChannel: "contract_notifications",
		Scheduler: SchedulerConfig{
			ContractCheckSpec:    "0 8 * * *",
			PaymentCheckInterval: 60 * time.Second,
			ContractLeadDays:     5,
			PaymentReminderLead:  5 * time.Minute,
			Lock:                 LockNone,
			LockTTL:              5 * time.Minute,
		},
		Outbox: OutboxConfig{
			Interval:    10 * time.Second,
			BatchSize:   50,
			MaxAttempts: 5,
		},
	}
}

// NewConfig loads configuration from defaults, an optional YAML file named by CONFIG_FILE,
// a .env file and environment variables, later sources winning.
func NewConfig() (*Config, error) {
	// .env is optional; real environment variables are never overwritten by it
	_ = godotenv.Load()

	cfg := defaults()
	if path, ok := os.LookupEnv("CONFIG_FILE"); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBConn = getEnv("DB_CONN", cfg.DBConn)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SenderEmail = getEnv("SENDER_EMAIL", cfg.SenderEmail)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.PushChannel = getEnv("PUSH_CHANNEL", cfg.PushChannel)
	cfg.EmailTemplatesFile = getEnv("EMAIL_TEMPLATES_FILE", cfg.EmailTemplatesFile)
	cfg.Scheduler.ContractCheckSpec = getEnv("CONTRACT_CHECK_SPEC", cfg.Scheduler.ContractCheckSpec)
	cfg.Scheduler.Lock = getEnv("SCHEDULER_LOCK", cfg.Scheduler.Lock)

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.Scheduler.ContractLeadDays, err = getEnvInt("CONTRACT_LEAD_DAYS", cfg.Scheduler.ContractLeadDays); err != nil {
		return nil, err
	}
	if cfg.Scheduler.PaymentCheckInterval, err = getEnvDuration("PAYMENT_CHECK_INTERVAL", cfg.Scheduler.PaymentCheckInterval); err != nil {
		return nil, err
	}
	if cfg.Scheduler.PaymentReminderLead, err = getEnvDuration("PAYMENT_REMINDER_LEAD", cfg.Scheduler.PaymentReminderLead); err != nil {
		return nil, err
	}
	if cfg.Scheduler.LockTTL, err = getEnvDuration("SCHEDULER_LOCK_TTL", cfg.Scheduler.LockTTL); err != nil {
		return nil, err
	}
	if cfg.Outbox.Interval, err = getEnvDuration("OUTBOX_INTERVAL", cfg.Outbox.Interval); err != nil {
		return nil, err
	}
	if cfg.Outbox.BatchSize, err = getEnvInt("OUTBOX_BATCH_SIZE", cfg.Outbox.BatchSize); err != nil {
		return nil, err
	}
	if cfg.Outbox.MaxAttempts, err = getEnvInt("OUTBOX_MAX_ATTEMPTS", cfg.Outbox.MaxAttempts); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Scheduler.ContractLeadDays <= 0 {
		return fmt.Errorf("CONTRACT_LEAD_DAYS must be positive, got %d", c.Scheduler.ContractLeadDays)
	}
	if c.Scheduler.PaymentCheckInterval <= 0 {
		return fmt.Errorf("PAYMENT_CHECK_INTERVAL must be positive")
	}
	if c.Scheduler.PaymentReminderLead < 0 {
		return fmt.Errorf("PAYMENT_REMINDER_LEAD must not be negative")
	}
	if c.Scheduler.LockTTL <= 0 {
		return fmt.Errorf("SCHEDULER_LOCK_TTL must be positive")
	}
	if c.Scheduler.Lock != LockNone && c.Scheduler.Lock != LockRedis {
		return fmt.Errorf("SCHEDULER_LOCK must be %q or %q, got %q", LockNone, LockRedis, c.Scheduler.Lock)
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("OUTBOX_INTERVAL must be positive")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE and OUTBOX_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
