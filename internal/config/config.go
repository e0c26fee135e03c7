// Package config loads relayer configuration via viper, keeping the
// teacher's sub-struct shape and env-var naming (internal/config/config.go)
// while replacing its hand-rolled os.Getenv/strconv parsing and adding the
// Auction/Secret/Order/Monitor/Retry sections spec.md §6 specifies.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the relayer core.
type Config struct {
	Database Database
	EVM      EVM
	UTXO     UTXO
	API      API
	Relayer  Relayer
	Auction  Auction
	Secret   Secret
	Order    Order
	Monitor  Monitor
	Retry    Retry
}

// Database configuration, kept verbatim from the teacher.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// EVM configuration (spec.md §6 evm.*), grounded on the teacher's Ethereum struct.
type EVM struct {
	RPCURL        string
	ChainID       int64
	EscrowFactory string
	Confirmations uint64
	PollInterval  time.Duration
	PrivateKey    string
	Address       string
	GasLimit      uint64
}

// UTXO configuration (spec.md §6 utxo.*), new — the teacher had no UTXO
// chain, only Sui; this replaces that with the spec's generic UTXO client.
type UTXO struct {
	RPCURL        string
	RPCUser       string
	RPCPass       string
	Network       string // mainnet|testnet|regtest
	Confirmations uint64
	PollInterval  time.Duration
}

// API configuration, kept from the teacher.
type API struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Relayer configuration, kept from the teacher.
type Relayer struct {
	MaxConcurrentOrders    int
	EventWatcherBufferSize int
	LogLevel               string
	ShutdownGracePeriod    time.Duration
}

// Auction configuration (spec.md §6 auction.*).
type Auction struct {
	DefaultDuration       time.Duration
	MinBidIncrement       uint64 // absolute units of price
	MaxConcurrentAuctions int
	ReserveRatio          float64
	BidTimeoutWindow      time.Duration
}

// Secret configuration (spec.md §6 secret.*).
type Secret struct {
	RevealDelay        time.Duration
	MaxSecretAge       time.Duration
	PartialFillTimeout time.Duration
	EncryptionKeyHex   string
}

// Order configuration (spec.md §6 order.*).
type Order struct {
	MaxPartialFills        int
	DefaultAuctionDuration time.Duration
	MaxOrderLifetime       time.Duration
	CleanupInterval        time.Duration
	EnablePartialFills     bool
	SafetyBuffer           time.Duration
}

// Monitor configuration (spec.md §6 monitor.*).
type Monitor struct {
	MaxReorgDepth uint64
}

// Retry configuration (spec.md §6 retry.*), applied uniformly to RPC retries.
type Retry struct {
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
}

// Load reads configuration from a config.yaml in the working directory and
// the process environment (FUSIONSWAP_ prefix), the environment taking
// precedence. A .env file, if present, is first loaded into the process
// environment without overriding variables already set, so its entries
// also take precedence over config.yaml.
func Load() (*Config, error) {
	// Best-effort .env load, matching the teacher's cmd/migrate behavior.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FUSIONSWAP")
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	setDefaults(v)

	var missing []string
	req := func(key string) string {
		val := v.GetString(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	cfg := &Config{
		Database: Database{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		EVM: EVM{
			RPCURL:        req("evm.rpcurl"),
			ChainID:       v.GetInt64("evm.chainid"),
			EscrowFactory: v.GetString("evm.escrowfactory"),
			Confirmations: v.GetUint64("evm.confirmations"),
			PollInterval:  v.GetDuration("evm.pollinterval"),
			PrivateKey:    v.GetString("evm.privatekey"),
			Address:       v.GetString("evm.address"),
			GasLimit:      v.GetUint64("evm.gaslimit"),
		},
		UTXO: UTXO{
			RPCURL:        req("utxo.rpcurl"),
			RPCUser:       v.GetString("utxo.rpcuser"),
			RPCPass:       v.GetString("utxo.rpcpass"),
			Network:       v.GetString("utxo.network"),
			Confirmations: v.GetUint64("utxo.confirmations"),
			PollInterval:  v.GetDuration("utxo.pollinterval"),
		},
		API: API{
			Port:            v.GetInt("api.port"),
			Host:            v.GetString("api.host"),
			ReadTimeout:     v.GetDuration("api.readtimeout"),
			WriteTimeout:    v.GetDuration("api.writetimeout"),
			ShutdownTimeout: v.GetDuration("api.shutdowntimeout"),
		},
		Relayer: Relayer{
			MaxConcurrentOrders:    v.GetInt("relayer.maxconcurrentorders"),
			EventWatcherBufferSize: v.GetInt("relayer.eventwatcherbuffersize"),
			LogLevel:               v.GetString("relayer.loglevel"),
			ShutdownGracePeriod:    v.GetDuration("relayer.shutdowngraceperiod"),
		},
		Auction: Auction{
			DefaultDuration:       v.GetDuration("auction.defaultduration"),
			MinBidIncrement:       v.GetUint64("auction.minbidincrement"),
			MaxConcurrentAuctions: v.GetInt("auction.maxconcurrentauctions"),
			ReserveRatio:          v.GetFloat64("auction.reserveratio"),
			BidTimeoutWindow:      v.GetDuration("auction.bidtimeoutwindow"),
		},
		Secret: Secret{
			RevealDelay:        v.GetDuration("secret.revealdelay"),
			MaxSecretAge:       v.GetDuration("secret.maxsecretage"),
			PartialFillTimeout: v.GetDuration("secret.partialfilltimeout"),
			EncryptionKeyHex:   req("secret.encryptionkey"),
		},
		Order: Order{
			MaxPartialFills:        v.GetInt("order.maxpartialfills"),
			DefaultAuctionDuration: v.GetDuration("order.defaultauctionduration"),
			MaxOrderLifetime:       v.GetDuration("order.maxorderlifetime"),
			CleanupInterval:        v.GetDuration("order.cleanupinterval"),
			EnablePartialFills:     v.GetBool("order.enablepartialfills"),
			SafetyBuffer:           v.GetDuration("order.safetybuffer"),
		},
		Monitor: Monitor{
			MaxReorgDepth: v.GetUint64("monitor.maxreorgdepth"),
		},
		Retry: Retry{
			MaxRetries:        v.GetInt("retry.maxretries"),
			RetryDelay:        v.GetDuration("retry.retrydelay"),
			BackoffMultiplier: v.GetFloat64("retry.backoffmultiplier"),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fusionswap")
	v.SetDefault("database.dbname", "fusionswap")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("evm.chainid", 1)
	v.SetDefault("evm.confirmations", 6)
	v.SetDefault("evm.pollinterval", 12*time.Second)
	v.SetDefault("evm.gaslimit", 500000)

	v.SetDefault("utxo.network", "testnet")
	v.SetDefault("utxo.confirmations", 2)
	v.SetDefault("utxo.pollinterval", 60*time.Second)

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.readtimeout", 10*time.Second)
	v.SetDefault("api.writetimeout", 10*time.Second)
	v.SetDefault("api.shutdowntimeout", 5*time.Second)

	v.SetDefault("relayer.maxconcurrentorders", 100)
	v.SetDefault("relayer.eventwatcherbuffersize", 100)
	v.SetDefault("relayer.loglevel", "info")
	v.SetDefault("relayer.shutdowngraceperiod", 5*time.Second)

	v.SetDefault("auction.defaultduration", 10*time.Minute)
	v.SetDefault("auction.minbidincrement", 1)
	v.SetDefault("auction.maxconcurrentauctions", 1000)
	v.SetDefault("auction.reserveratio", 0.98)
	v.SetDefault("auction.bidtimeoutwindow", 30*time.Second)

	v.SetDefault("secret.revealdelay", 30*time.Second)
	v.SetDefault("secret.maxsecretage", 24*time.Hour)
	v.SetDefault("secret.partialfilltimeout", 1*time.Hour)

	v.SetDefault("order.maxpartialfills", 8)
	v.SetDefault("order.defaultauctionduration", 10*time.Minute)
	v.SetDefault("order.maxorderlifetime", 24*time.Hour)
	v.SetDefault("order.cleanupinterval", 5*time.Minute)
	v.SetDefault("order.enablepartialfills", true)
	v.SetDefault("order.safetybuffer", 1*time.Hour)

	v.SetDefault("monitor.maxreorgdepth", 6)

	v.SetDefault("retry.maxretries", 3)
	v.SetDefault("retry.retrydelay", 5*time.Second)
	v.SetDefault("retry.backoffmultiplier", 2.0)
}
