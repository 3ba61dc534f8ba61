// Package config contém a leitura da configuração do serviço da lanchonete.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contém os parâmetros de execução do serviço.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	PixKey           string        `env:"PIX_KEY"`
	PixMerchantName  string        `env:"PIX_MERCHANT_NAME"`
	PixMerchantCity  string        `env:"PIX_MERCHANT_CITY"`
	StaffPassword    string        `env:"STAFF_PASSWORD"`
	SessionSecret    string        `env:"SESSION_SECRET"`
	OrderWatchPeriod time.Duration `env:"ORDER_WATCH_PERIOD"`
}

// Parse lê a configuração de flags de linha de comando e variáveis de
// ambiente; o ambiente tem precedência sobre as flags.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPixKey := cfg.PixKey
	envPixName := cfg.PixMerchantName
	envPixCity := cfg.PixMerchantCity
	envStaffPassword := cfg.StaffPassword
	envSessionSecret := cfg.SessionSecret
	envWatchPeriod := cfg.OrderWatchPeriod

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PixKey, "pix-key", "", "Pix key of the merchant")
	flag.StringVar(&cfg.PixMerchantName, "pix-name", "TIO FLAVIO LANCHES", "merchant name on the Pix payload")
	flag.StringVar(&cfg.PixMerchantCity, "pix-city", "RECIFE", "merchant city on the Pix payload")
	flag.StringVar(&cfg.StaffPassword, "staff-password", "", "password for the staff panels")
	flag.StringVar(&cfg.SessionSecret, "session-secret", "", "secret for signing staff session cookies")
	flag.DurationVar(&cfg.OrderWatchPeriod, "watch-period", 10*time.Second, "polling period of the new-order watch")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPixKey != "" {
		cfg.PixKey = envPixKey
	}
	if envPixName != "" {
		cfg.PixMerchantName = envPixName
	}
	if envPixCity != "" {
		cfg.PixMerchantCity = envPixCity
	}
	if envStaffPassword != "" {
		cfg.StaffPassword = envStaffPassword
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}
	if envWatchPeriod != 0 {
		cfg.OrderWatchPeriod = envWatchPeriod
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OrderWatchPeriod <= 0 {
		cfg.OrderWatchPeriod = 10 * time.Second
	}

	return cfg, nil
}
