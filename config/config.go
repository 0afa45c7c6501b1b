package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"formloft/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LifecycleConfig holds the tunable knobs of the lifecycle engine.
// Step delays are product decisions, not code; keep them here.
type LifecycleConfig struct {
	EvaluateInterval time.Duration `json:"evaluate_interval"`
	ProcessInterval  time.Duration `json:"process_interval"`
	WorkerLimit      int           `json:"worker_limit"`

	FrozenStarterFollowupDays int `json:"frozen_starter_followup_days"`
	IdleBuilderFollowupDays   int `json:"idle_builder_followup_days"`
}

type Config struct {
	Environment    string      `json:"environment"`
	ServerPort     string      `json:"server_port"`
	BaseURL        string      `json:"base_url"`
	DBHost         string      `json:"db_host"`
	DBPort         string      `json:"db_port"`
	DBUser         string      `json:"db_user"`
	DBPassword     string      `json:"-"`
	DBName         string      `json:"db_name"`
	DBSSLMode      string      `json:"db_ssl_mode"`
	DBMaxIdleConns int         `json:"db_max_idle_conns"`
	DBMaxOpenConns int         `json:"db_max_open_conns"`
	Redis          RedisConfig `json:"redis"`

	// LinkSecret signs unsubscribe tokens; WebhookSecret authenticates
	// delivery provider callbacks. WebhookSecret is validated by the
	// webhook handler itself so the rest of the engine can run without it.
	LinkSecret     string `json:"-"`
	WebhookSecret  string `json:"-"`
	AdminJWTSecret string `json:"-"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`
	FromName     string `json:"from_name"`

	SentryDSN string `json:"-"`

	RateLimitWebhook int `json:"rate_limit_webhook"`

	Lifecycle LifecycleConfig `json:"lifecycle"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "formloft"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		LinkSecret:     getEnv("LINK_SECRET", ""),
		WebhookSecret:  getEnv("WEBHOOK_SIGNING_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", "hello@formloft.io"),
		FromName:     getEnv("FROM_NAME", "Formloft"),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 120),

		Lifecycle: LifecycleConfig{
			EvaluateInterval:          time.Duration(getEnvAsInt("LIFECYCLE_EVALUATE_MINUTES", 60)) * time.Minute,
			ProcessInterval:           time.Duration(getEnvAsInt("LIFECYCLE_PROCESS_MINUTES", 10)) * time.Minute,
			WorkerLimit:               getEnvAsInt("LIFECYCLE_WORKER_LIMIT", 8),
			FrozenStarterFollowupDays: getEnvAsInt("LIFECYCLE_FROZEN_STARTER_FOLLOWUP_DAYS", 4),
			IdleBuilderFollowupDays:   getEnvAsInt("LIFECYCLE_IDLE_BUILDER_FOLLOWUP_DAYS", 5),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.LinkSecret == "" {
		return fmt.Errorf("LINK_SECRET is required for unsubscribe link signing")
	}
	if AppConfig.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required for the admin API")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SIGNING_SECRET is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Lifecycle: evaluate every %v, process every %v, %d workers",
		AppConfig.Lifecycle.EvaluateInterval,
		AppConfig.Lifecycle.ProcessInterval,
		AppConfig.Lifecycle.WorkerLimit)
}

// MigrateDB is exported so tests can migrate an in-memory database.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Plan{},
		&models.Tenant{},
		&models.Form{},
		&models.Submission{},
		&models.Sequence{},
		&models.DeliveryEvent{},
		&models.Unsubscribe{},
	)
}
