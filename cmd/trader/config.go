package main

import (
	"fmt"
	"os"

	configtypes "github.com/updownlabs/dipcatcher/internal/config"
	"go.yaml.in/yaml/v4"
)

type databaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
	SSLMode  string `yaml:"ssl_mode"`
}

type config struct {
	LogLevel    string          `yaml:"log_level"` // debug, info, warn, error
	MetricsAddr string          `yaml:"metrics_addr"`
	Database    *databaseConfig `yaml:"database"` // optional; omit to disable the journal
	Polymarket  struct {
		GammaURL     string `yaml:"gamma_url"`
		WebsocketURL string `yaml:"websocket_url"`
	} `yaml:"polymarket"`
	Market struct {
		Asset          string               `yaml:"asset"` // slug prefix, e.g. "btc-updown-15m-"
		WindowLength   configtypes.Duration `yaml:"window_length"`
		PingInterval   configtypes.Duration `yaml:"ping_interval"`
		ReconnectDelay configtypes.Duration `yaml:"reconnect_delay"`
	} `yaml:"market"`
	Strategy struct {
		Lookback      configtypes.Duration `yaml:"lookback"`
		DropThreshold float64              `yaml:"drop_threshold"`
		Notional      float64              `yaml:"notional"`
		Slippage      float64              `yaml:"slippage"`
		Cooldown      configtypes.Duration `yaml:"cooldown"`
		TickInterval  configtypes.Duration `yaml:"tick_interval"`
		WarmupWait    configtypes.Duration `yaml:"warmup_wait"`
	} `yaml:"strategy"`
}

func readConfig(configPath *string) (*config, error) {
	rawConfig, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't read file %s: %w", *configPath, err)
	}

	cfg := &config{}
	if err = yaml.Unmarshal(rawConfig, cfg); err != nil {
		return nil, fmt.Errorf("couldn't parse config: %w", err)
	}

	err = validateConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't validate config: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *config) error {
	// Polymarket
	if cfg.Polymarket.GammaURL == "" {
		return fmt.Errorf("polymarket.gamma_url is required")
	}
	if cfg.Polymarket.WebsocketURL == "" {
		return fmt.Errorf("polymarket.websocket_url is required")
	}

	// Market
	if cfg.Market.Asset == "" {
		return fmt.Errorf("market.asset is required")
	}
	if cfg.Market.WindowLength.Duration() <= 0 {
		return fmt.Errorf("market.window_length is required")
	}

	// Strategy
	if cfg.Strategy.DropThreshold <= 0 || cfg.Strategy.DropThreshold >= 1 {
		return fmt.Errorf("strategy.drop_threshold must be in (0, 1)")
	}
	if cfg.Strategy.Notional <= 0 {
		return fmt.Errorf("strategy.notional must be greater than 0")
	}
	if cfg.Strategy.Slippage < 0 {
		return fmt.Errorf("strategy.slippage must not be negative")
	}

	// Database (optional block, required fields when present)
	if db := cfg.Database; db != nil {
		if db.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if db.Port <= 0 || db.Port > 65535 {
			return fmt.Errorf("database.port must be between 1 and 65535")
		}
		if db.User == "" {
			return fmt.Errorf("database.user is required")
		}
		if db.Database == "" {
			return fmt.Errorf("database.database is required")
		}
		if db.SSLMode == "" {
			return fmt.Errorf("database.ssl_mode is required")
		}
	}

	return nil
}
