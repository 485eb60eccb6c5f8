package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	SolverAPIKey  string
	SolverBaseURL string
	VisionAPIKey  string
	VisionModel   string
	OutputDir     string
	HistoryDB     string
	S3Bucket      string
	S3Region      string
	Headless      bool
	MaxWait       time.Duration
	MaxAttempts   int
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.captcha-agent")

	// Set defaults
	viper.SetDefault("solver_base_url", "https://2captcha.com")
	viper.SetDefault("vision_model", "gpt-4o-mini")
	viper.SetDefault("output_dir", "./solve-results")
	viper.SetDefault("history_db", "./solve-history.db")
	viper.SetDefault("headless", true)
	viper.SetDefault("max_wait", 120)
	viper.SetDefault("max_attempts", 3)

	// Read environment variables
	viper.SetEnvPrefix("SOLVER")
	viper.AutomaticEnv()

	// Read config file (optional - don't fail if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK - we'll use defaults
	}

	config := &Config{
		SolverAPIKey:  viper.GetString("api_key"),
		SolverBaseURL: viper.GetString("solver_base_url"),
		VisionAPIKey:  viper.GetString("vision_api_key"),
		VisionModel:   viper.GetString("vision_model"),
		OutputDir:     viper.GetString("output_dir"),
		HistoryDB:     viper.GetString("history_db"),
		S3Bucket:      viper.GetString("s3_bucket"),
		S3Region:      viper.GetString("s3_region"),
		Headless:      viper.GetBool("headless"),
		MaxWait:       time.Duration(viper.GetInt("max_wait")) * time.Second,
		MaxAttempts:   viper.GetInt("max_attempts"),
	}

	if config.VisionAPIKey == "" {
		// The vision gate is optional; fall back to the standard variable
		// so a single key serves both OCR and any other OpenAI use.
		config.VisionAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	return config, nil
}

// EnsureOutputDir creates the output directory if it doesn't exist
func EnsureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}
