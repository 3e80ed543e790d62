package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultContractAddress is the deployed IndulgencePortal contract.
const DefaultContractAddress = "0xC8718FC542c020Cad96778a69f884bd9C7cAC821"

// Config holds all configuration for the application.
type Config struct {
	// Host is the interface the HTTP server binds to.
	Host string

	// Port is the HTTP server port.
	Port int

	// LogLevel is one of debug, info, warn or error.
	LogLevel string

	// LogFile is where the terminal client writes its logs, since stdout
	// belongs to the UI.
	LogFile string

	// RPCURL is the Ethereum JSON-RPC endpoint. Use a WebSocket endpoint so
	// that event subscriptions work.
	RPCURL string

	// ContractAddress is the address of the confession contract.
	ContractAddress common.Address

	// Wallet selects and unlocks the signing account.
	Wallet WalletConfig

	// ConfirmTimeout bounds how long a submitted transaction may stay pending.
	ConfirmTimeout time.Duration

	// ReconnectDelay is the pause before re-opening a failed event subscription.
	ReconnectDelay time.Duration
}

// WalletConfig describes where the signing key lives. KeystoreDir takes
// precedence over PrivateKey. When neither is set no wallet is available.
type WalletConfig struct {
	KeystoreDir string

	// Account picks an account from the keystore. Empty means the first one.
	Account string

	// Passphrase answers the unlock prompt non-interactively (server mode).
	Passphrase string

	PrivateKey string
}

// Configured reports whether any wallet source has been set.
func (w WalletConfig) Configured() bool {
	return w.KeystoreDir != "" || w.PrivateKey != ""
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port := 3000
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	host := os.Getenv("HTTP_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	rpcURL := os.Getenv("ETH_RPC_URL")
	if rpcURL == "" {
		rpcURL = "ws://localhost:8546"
	}

	addr := os.Getenv("CONTRACT_ADDRESS")
	if addr == "" {
		addr = DefaultContractAddress
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid CONTRACT_ADDRESS: %q", addr)
	}

	confirmTimeout, err := durationEnv("CONFIRM_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	reconnectDelay, err := durationEnv("RECONNECT_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "confess.log"
	}

	return &Config{
		Host:            host,
		Port:            port,
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFile:         logFile,
		RPCURL:          rpcURL,
		ContractAddress: common.HexToAddress(addr),
		Wallet: WalletConfig{
			KeystoreDir: os.Getenv("WALLET_KEYSTORE"),
			Account:     os.Getenv("WALLET_ACCOUNT"),
			Passphrase:  os.Getenv("WALLET_PASSPHRASE"),
			PrivateKey:  os.Getenv("WALLET_PRIVATE_KEY"),
		},
		ConfirmTimeout: confirmTimeout,
		ReconnectDelay: reconnectDelay,
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
