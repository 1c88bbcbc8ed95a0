package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string
	JWTTTL    time.Duration

	ChainID        *big.Int
	DomainName     string
	DomainVersion  string
	GameAddress    common.Address
	TokenAddress   common.Address
	FeeTokenAddr   common.Address
	PrimaryOwner   common.Address
	ServerSigner   common.Address
	SignerPolicy   string
	GameFee        *big.Int // whole fee tokens
	DailyReward    *big.Int // whole reward tokens
	InitialSupply  *big.Int // whole reward tokens
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:      os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		DomainName:     getEnv("DOMAIN_NAME", "MinesweeperRewards"),
		DomainVersion:  getEnv("DOMAIN_VERSION", "1"),
		SignerPolicy:   getEnv("SIGNER_POLICY", "server"),
		RateLimitRPS:   5,
		RateLimitBurst: 10,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvInt("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return nil, err
	}

	ttl := getEnv("JWT_TTL", "24h")
	if cfg.JWTTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL %q: %v", ttl, err)
	}

	if cfg.ChainID, err = getEnvBig("CHAIN_ID", 31337); err != nil {
		return nil, err
	}
	if cfg.GameFee, err = getEnvBig("GAME_FEE", 1); err != nil {
		return nil, err
	}
	if cfg.DailyReward, err = getEnvBig("DAILY_REWARD_LIMIT", 10000); err != nil {
		return nil, err
	}
	if cfg.InitialSupply, err = getEnvBig("INITIAL_SUPPLY", 0); err != nil {
		return nil, err
	}

	addrs := []struct {
		key string
		dst *common.Address
		def string
	}{
		{"GAME_CONTRACT_ADDRESS", &cfg.GameAddress, "0x00000000000000000000000000000000000a11ce"},
		{"TOKEN_CONTRACT_ADDRESS", &cfg.TokenAddress, "0x0000000000000000000000000000000000000b0b"},
		{"FEE_TOKEN_ADDRESS", &cfg.FeeTokenAddr, "0x0000000000000000000000000000000000000fee"},
		{"PRIMARY_OWNER", &cfg.PrimaryOwner, ""},
		{"SERVER_SIGNER", &cfg.ServerSigner, ""},
	}
	for _, a := range addrs {
		if *a.dst, err = getEnvAddress(a.key, a.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PrimaryOwner == (common.Address{}) {
		return fmt.Errorf("PRIMARY_OWNER is required")
	}
	if c.ServerSigner == (common.Address{}) {
		return fmt.Errorf("SERVER_SIGNER is required")
	}
	switch c.SignerPolicy {
	case "server", "set":
	default:
		return fmt.Errorf("invalid SIGNER_POLICY %q (want server or set)", c.SignerPolicy)
	}
	if c.ChainID.Sign() <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	return n, nil
}

func getEnvBig(key string, def int64) (*big.Int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return big.NewInt(def), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func getEnvAddress(key, def string) (common.Address, error) {
	v := getEnv(key, def)
	if v == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s %q: not a hex address", key, v)
	}
	return common.HexToAddress(v), nil
}
