package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultChainID              = 137
	DefaultAggregatorURL        = "https://polygon.api.0x.org"
	DefaultPricePath            = "/swap/v1/price"
	DefaultQuotePath            = "/swap/v1/quote"
	DefaultERC20ContractAddress = "0xd66cd7D7698706F8437427A3cAb537aBc12c8C88"
	DefaultSIWEStatement        = "Hey Dabbler, sign-in to our cool app!!!"
)

// Config holds the application configuration
type Config struct {
	RPCURL     string
	ChainID    int64
	PrivateKey string

	Aggregator AggregatorConfig

	// ExchangeProxy overrides the per-chain default spender for approvals
	ExchangeProxy        string
	ERC20ContractAddress string
	WalletConnectProject string
	ExplorerURL          string

	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	HistoryFile string
	LogLevel    string

	Server ServerConfig
	SIWE   SIWEConfig
	Redis  RedisConfig
}

// AggregatorConfig describes the swap aggregator HTTP API
type AggregatorConfig struct {
	BaseURL   string
	APIKey    string
	PricePath string
	QuotePath string
	Timeout   time.Duration
}

// ServerConfig holds the HTTP backend settings
type ServerConfig struct {
	Listen string
}

// SIWEConfig holds Sign-In-With-Ethereum settings
type SIWEConfig struct {
	Domain     string
	URI        string
	Statement  string
	JWTSecret  string
	SessionTTL time.Duration
	NonceTTL   time.Duration
}

// RedisConfig enables the shared nonce store when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".devcamp")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// DEVCAMP_AGGREGATOR_API_KEY maps to aggregator.api_key
	v.SetEnvPrefix("DEVCAMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional)
	_ = v.ReadInConfig()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain_id", DefaultChainID)
	v.SetDefault("aggregator.base_url", DefaultAggregatorURL)
	v.SetDefault("aggregator.price_path", DefaultPricePath)
	v.SetDefault("aggregator.quote_path", DefaultQuotePath)
	v.SetDefault("aggregator.timeout", 15*time.Second)
	v.SetDefault("erc20_contract_address", DefaultERC20ContractAddress)
	v.SetDefault("confirm_timeout", 10*time.Minute)
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("server.listen", ":3000")
	v.SetDefault("siwe.domain", "localhost:3000")
	v.SetDefault("siwe.uri", "http://localhost:3000")
	v.SetDefault("siwe.statement", DefaultSIWEStatement)
	v.SetDefault("siwe.session_ttl", 24*time.Hour)
	v.SetDefault("siwe.nonce_ttl", 10*time.Minute)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		RPCURL:     v.GetString("rpc_url"),
		ChainID:    v.GetInt64("chain_id"),
		PrivateKey: v.GetString("private_key"),
		Aggregator: AggregatorConfig{
			BaseURL:   v.GetString("aggregator.base_url"),
			APIKey:    v.GetString("aggregator.api_key"),
			PricePath: v.GetString("aggregator.price_path"),
			QuotePath: v.GetString("aggregator.quote_path"),
			Timeout:   v.GetDuration("aggregator.timeout"),
		},
		ExchangeProxy:        v.GetString("exchange_proxy"),
		ERC20ContractAddress: v.GetString("erc20_contract_address"),
		WalletConnectProject: v.GetString("walletconnect_project_id"),
		ExplorerURL:          v.GetString("explorer_url"),
		ConfirmTimeout:       v.GetDuration("confirm_timeout"),
		PollInterval:         v.GetDuration("poll_interval"),
		HistoryFile:          v.GetString("history_file"),
		LogLevel:             v.GetString("log_level"),
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		SIWE: SIWEConfig{
			Domain:     v.GetString("siwe.domain"),
			URI:        v.GetString("siwe.uri"),
			Statement:  v.GetString("siwe.statement"),
			JWTSecret:  v.GetString("siwe.jwt_secret"),
			SessionTTL: v.GetDuration("siwe.session_ttl"),
			NonceTTL:   v.GetDuration("siwe.nonce_ttl"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}
}

// Validate checks settings every command depends on
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", c.ChainID)
	}
	if c.Aggregator.BaseURL == "" {
		return fmt.Errorf("aggregator base url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}
	return nil
}

// RequireWallet validates the settings needed to sign and submit transactions
func (c *Config) RequireWallet() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL not configured. Please set DEVCAMP_RPC_URL or rpc_url in .devcamp.yaml")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("wallet not connected. Please set DEVCAMP_PRIVATE_KEY or private_key in .devcamp.yaml")
	}
	return nil
}

// RequireSession validates the settings needed to issue SIWE sessions
func (c *Config) RequireSession() error {
	if len(c.SIWE.JWTSecret) < 32 {
		return fmt.Errorf("siwe.jwt_secret must be at least 32 characters")
	}
	if c.SIWE.Domain == "" {
		return fmt.Errorf("siwe.domain is required")
	}
	return nil
}
