// Package config loads the engine configuration from a yaml file and/or
// environment variables.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	HTTPPort int    `yaml:"http_port" env:"PORT" env-default:"8080"`

	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`

	Market Market `yaml:"market"`
}

type Market struct {
	// FeeRate is the markdown applied to the ask price on settlement.
	FeeRate float64 `yaml:"fee_rate" env:"MARKET_FEE_RATE" env-default:"0.05"`

	// MaxAskPrice caps listing prices.
	MaxAskPrice int64 `yaml:"max_ask_price" env:"MARKET_MAX_ASK_PRICE" env-default:"1000000000"`

	// PlayerCacheTTL bounds staleness of the Redis player cache.
	PlayerCacheTTL time.Duration `yaml:"player_cache_ttl" env:"MARKET_PLAYER_CACHE_TTL" env-default:"30s"`
}

// MustLoad reads configuration from the file named by -config or
// CONFIG_PATH, falling back to environment variables only.
func MustLoad() *Config {
	var cfg Config

	path := fetchConfigPath()
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			panic("config file does not exist: " + path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			panic("failed to read config: " + err.Error())
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("failed to read config from env: " + err.Error())
	}
	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
