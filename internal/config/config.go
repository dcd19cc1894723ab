// Package config loads the oracle configuration: built-in defaults, then an
// optional YAML file, then ORACLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the variable holding the config file path when no
// path is given explicitly.
const EnvConfigFile = "ORACLE_CONFIG_FILE"

const (
	DefaultRPCURL              = "https://api.avax-test.network/ext/bc/C/rpc"
	DefaultChainID             = 43113
	DefaultGasLimit            = 80000
	DefaultGasPriceGwei        = 30
	DefaultPollInterval        = 3 * time.Second
	DefaultEntropyURL          = "https://qrng.anu.edu.au/API/jsonI.php?length=1&type=uint8"
	DefaultEntropyTimeout      = 3 * time.Second
	DefaultReceiptPollInterval = time.Second
	DefaultReceiptTimeout      = 2 * time.Minute
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// Config is the complete oracle configuration.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Entropy EntropyConfig `yaml:"entropy"`
	Relay   RelayConfig   `yaml:"relay"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// ChainConfig describes the ledger, the contract and the relay wallet.
type ChainConfig struct {
	RPCURL          string `yaml:"rpc_url" env:"ORACLE_RPC_URL"`
	ContractAddress string `yaml:"contract_address" env:"ORACLE_CONTRACT_ADDRESS"`
	// WalletAddress is optional; when set it must match PrivateKey.
	WalletAddress string `yaml:"wallet_address" env:"ORACLE_WALLET_ADDRESS"`
	PrivateKey    string `yaml:"private_key" env:"ORACLE_PRIVATE_KEY"`

	ChainID      int64  `yaml:"chain_id" env:"ORACLE_CHAIN_ID"`
	GasLimit     uint64 `yaml:"gas_limit" env:"ORACLE_GAS_LIMIT"`
	GasPriceGwei uint64 `yaml:"gas_price_gwei" env:"ORACLE_GAS_PRICE_GWEI"`

	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval" env:"ORACLE_RECEIPT_POLL_INTERVAL"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout" env:"ORACLE_RECEIPT_TIMEOUT"`
}

// EntropyConfig configures the remote QRNG service.
type EntropyConfig struct {
	URL     string        `yaml:"url" env:"ORACLE_ENTROPY_URL"`
	Timeout time.Duration `yaml:"timeout" env:"ORACLE_ENTROPY_TIMEOUT"`
	// MinInterval throttles remote calls. Zero disables throttling.
	MinInterval time.Duration `yaml:"min_interval" env:"ORACLE_ENTROPY_MIN_INTERVAL"`
}

// RelayConfig configures the polling loop.
type RelayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"ORACLE_POLL_INTERVAL"`
}

// HTTPConfig configures the status and metrics server.
type HTTPConfig struct {
	// ListenAddr is empty to disable the server.
	ListenAddr string `yaml:"listen_addr" env:"ORACLE_HTTP_ADDR"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"ORACLE_LOG_LEVEL"`
	Format string `yaml:"format" env:"ORACLE_LOG_FORMAT"`
}

// Default returns the built-in configuration. Contract address and private
// key have no default.
func Default() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              DefaultRPCURL,
			ChainID:             DefaultChainID,
			GasLimit:            DefaultGasLimit,
			GasPriceGwei:        DefaultGasPriceGwei,
			ReceiptPollInterval: DefaultReceiptPollInterval,
			ReceiptTimeout:      DefaultReceiptTimeout,
		},
		Entropy: EntropyConfig{
			URL:     DefaultEntropyURL,
			Timeout: DefaultEntropyTimeout,
		},
		Relay: RelayConfig{
			PollInterval: DefaultPollInterval,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $ORACLE_CONFIG_FILE when path is empty) and the environment. envFiles are
// loaded into the environment first; a missing .env file is ignored.
func Load(path string, envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays ORACLE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := validateURL(c.Chain.RPCURL); err != nil {
		add("chain.rpc_url: %v", err)
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		add("chain.contract_address: %q is not a hex address", c.Chain.ContractAddress)
	}
	if c.Chain.PrivateKey == "" {
		add("chain.private_key is required")
	} else if addr, err := c.RelayAddress(); err != nil {
		add("chain.private_key: %v", err)
	} else if c.Chain.WalletAddress != "" {
		switch {
		case !common.IsHexAddress(c.Chain.WalletAddress):
			add("chain.wallet_address: %q is not a hex address", c.Chain.WalletAddress)
		case common.HexToAddress(c.Chain.WalletAddress) != addr:
			add("chain.wallet_address %s does not match the private key address %s", c.Chain.WalletAddress, addr.Hex())
		}
	}
	if c.Chain.ChainID <= 0 {
		add("chain.chain_id must be positive")
	}
	if c.Chain.GasLimit == 0 {
		add("chain.gas_limit must be positive")
	}
	if c.Chain.GasPriceGwei == 0 {
		add("chain.gas_price_gwei must be positive")
	}
	if c.Chain.ReceiptPollInterval <= 0 {
		add("chain.receipt_poll_interval must be positive")
	}
	if c.Chain.ReceiptTimeout <= 0 {
		add("chain.receipt_timeout must be positive")
	}

	if err := validateURL(c.Entropy.URL); err != nil {
		add("entropy.url: %v", err)
	}
	if c.Entropy.Timeout <= 0 {
		add("entropy.timeout must be positive")
	}
	if c.Entropy.MinInterval < 0 {
		add("entropy.min_interval must not be negative")
	}
	if c.Relay.PollInterval <= 0 {
		add("relay.poll_interval must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format: %q is not text or json", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RelayAddress derives the wallet address from the private key.
func (c Config) RelayAddress() (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.Chain.PrivateKey), "0x"))
	if err != nil {
		return common.Address{}, errors.New("not a valid secp256k1 key")
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// ContractAddr returns the parsed contract address.
func (c Config) ContractAddr() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}

// ChainIDBig returns the chain id as a big.Int.
func (c Config) ChainIDBig() *big.Int {
	return big.NewInt(c.Chain.ChainID)
}

// GasPriceWei converts the configured gas price to wei.
func (c Config) GasPriceWei() *big.Int {
	price := new(big.Int).SetUint64(c.Chain.GasPriceGwei)
	return price.Mul(price, big.NewInt(params.GWei))
}

// String renders the configuration with the private key redacted.
func (c Config) String() string {
	redacted := c
	if redacted.Chain.PrivateKey != "" {
		redacted.Chain.PrivateKey = "[redacted]"
	}
	out, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
