package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server    Server
	Database  Database
	Auth      Auth
	Evaluator Evaluator
	Timer     Timer
}

type Server struct {
	Port    string
	GinMode string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type Auth struct {
	JWTSecret string
	// RequireChiefAdminForPublish gates results publication behind the chief_admin claim.
	RequireChiefAdminForPublish bool
}

type Evaluator struct {
	Driver       string // "gemini" | "http"
	GeminiApiKey string
	GeminiModel  string
	URL          string
	Timeout      time.Duration
	MaxRetries   int
	Concurrency  int
}

type Timer struct {
	SweepInterval   time.Duration
	SubmissionGrace time.Duration
	RescoreAfter    time.Duration
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("DATABASE_SSLMODE", "disable")
	viper.SetDefault("REQUIRE_CHIEF_ADMIN_FOR_PUBLISH", true)
	viper.SetDefault("EVALUATOR_DRIVER", "gemini")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("EVALUATOR_TIMEOUT", "20s")
	viper.SetDefault("EVALUATOR_MAX_RETRIES", 2)
	viper.SetDefault("EVALUATOR_CONCURRENCY", 4)
	viper.SetDefault("DEADLINE_SWEEP_INTERVAL", "30s")
	viper.SetDefault("SUBMISSION_GRACE", "30s")
	viper.SetDefault("RESCORE_AFTER", "5m")

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Server.GinMode = viper.GetString("GIN_MODE")

	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")
	config.Database.SSLMode = viper.GetString("DATABASE_SSLMODE")

	config.Auth.JWTSecret = viper.GetString("JWT_SECRET")
	config.Auth.RequireChiefAdminForPublish = viper.GetBool("REQUIRE_CHIEF_ADMIN_FOR_PUBLISH")

	config.Evaluator.Driver = viper.GetString("EVALUATOR_DRIVER")
	config.Evaluator.GeminiApiKey = viper.GetString("GEMINI_API_KEY")
	config.Evaluator.GeminiModel = viper.GetString("GEMINI_MODEL")
	config.Evaluator.URL = viper.GetString("EVALUATOR_URL")
	config.Evaluator.Timeout = viper.GetDuration("EVALUATOR_TIMEOUT")
	config.Evaluator.MaxRetries = viper.GetInt("EVALUATOR_MAX_RETRIES")
	config.Evaluator.Concurrency = viper.GetInt("EVALUATOR_CONCURRENCY")

	config.Timer.SweepInterval = viper.GetDuration("DEADLINE_SWEEP_INTERVAL")
	config.Timer.SubmissionGrace = viper.GetDuration("SUBMISSION_GRACE")
	config.Timer.RescoreAfter = viper.GetDuration("RESCORE_AFTER")

	log.Info().
		Str("port", config.Server.Port).
		Str("dbHost", config.Database.Host).
		Str("dbName", config.Database.Name).
		Str("evaluator", config.Evaluator.Driver).
		Dur("evaluatorTimeout", config.Evaluator.Timeout).
		Dur("sweepInterval", config.Timer.SweepInterval).
		Msg("Config loaded")
	return &config, nil

}
