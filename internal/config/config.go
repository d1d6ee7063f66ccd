package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	State      StateConfig      `yaml:"state"`
	Vault      VaultConfig      `yaml:"vault"`
	Simulation SimulationConfig `yaml:"simulation"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Feed       FeedConfig       `yaml:"feed"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type VaultConfig struct {
	Address           string   `yaml:"address"`
	MaxLossBps        uint16   `yaml:"max_loss_bps"`
	SupportedVersions []string `yaml:"supported_versions"`
	OperatorKey       string   `yaml:"operator_key"`
}

// SimulationConfig describes the in-process asset and strategy the daemon
// runs against.
type SimulationConfig struct {
	AssetSymbol     string `yaml:"asset_symbol"`
	AssetAddress    string `yaml:"asset_address"`
	StrategyAddress string `yaml:"strategy_address"`
	StrategyVersion string `yaml:"strategy_version"`
	UnitDecimals    uint8  `yaml:"unit_decimals"`
	DepositLimit    string `yaml:"deposit_limit"`
	SlippageBps     uint16 `yaml:"slippage_bps"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type FeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Path         string        `yaml:"path"`
	Buffer       int           `yaml:"buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	// LossAlertBps is the redemption shortfall that triggers an alert.
	LossAlertBps uint16 `yaml:"loss_alert_bps"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/yield-vault.db"
	}
	if cfg.Simulation.AssetSymbol == "" {
		cfg.Simulation.AssetSymbol = "USDC"
	}
	if cfg.Simulation.StrategyVersion == "" {
		cfg.Simulation.StrategyVersion = "0.4.6"
	}
	if cfg.Simulation.UnitDecimals == 0 {
		cfg.Simulation.UnitDecimals = 6
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = "/ws"
	}
	if cfg.Feed.Buffer <= 0 {
		cfg.Feed.Buffer = 64
	}
	if cfg.Feed.WriteTimeout == 0 {
		cfg.Feed.WriteTimeout = 5 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize <= 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("VAULT_OPERATOR_KEY"); ok {
		cfg.Vault.OperatorKey = v
	}
	if v, ok := lookupEnv("VAULT_TELEGRAM_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := lookupEnv("VAULT_TELEGRAM_CHAT_ID"); ok {
		cfg.Telegram.ChatID = v
	}
	if v, ok := lookupEnv("VAULT_TIMESCALE_DSN"); ok {
		cfg.Timescale.DSN = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func validate(cfg *Config) error {
	for name, addr := range map[string]string{
		"vault.address":               cfg.Vault.Address,
		"simulation.asset_address":    cfg.Simulation.AssetAddress,
		"simulation.strategy_address": cfg.Simulation.StrategyAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s %q is not a hex address", name, addr)
		}
	}
	if cfg.Vault.MaxLossBps > vault.MaxBps {
		return errors.New("vault.max_loss_bps must be <= 10000")
	}
	if cfg.Simulation.SlippageBps > vault.MaxBps {
		return errors.New("simulation.slippage_bps must be <= 10000")
	}
	if _, err := vault.UnitScale(cfg.Simulation.UnitDecimals); err != nil {
		return fmt.Errorf("simulation.unit_decimals: %w", err)
	}
	if cfg.Simulation.DepositLimit != "" {
		if _, err := vault.ParseAmount(cfg.Simulation.DepositLimit); err != nil {
			return fmt.Errorf("simulation.deposit_limit: %w", err)
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Address == cfg.Server.Address {
		return errors.New("metrics.address must differ from server.address")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Telegram.LossAlertBps > vault.MaxBps {
		return errors.New("telegram.loss_alert_bps must be <= 10000")
	}
	return nil
}
