package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Env  string
	Port int

	// per-request deadline for the API; 0 disables it
	RequestTimeoutSeconds int

	Db     DbConfig
	Redis  RedisConfig
	Alpaca AlpacaConfig

	// "fixed" uses Engine.RiskFreeRate, "treasury" reads the yield curve
	RiskFreeRateSource string

	// directory holding strategies.json, holdings.csv and prices.csv for
	// the file-backed repositories
	DataDir string

	Engine EngineConfig
}

type DbConfig struct {
	Host      string
	User      string
	Port      string
	Password  string
	Database  string
	EnableSsl bool
}

func (t DbConfig) Enabled() bool {
	return t.Host != ""
}

func (t DbConfig) ToConnectionStr() string {
	x := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		t.Host, t.Port, t.User, t.Password, t.Database)
	if !t.EnableSsl {
		x += " sslmode=disable"
	}
	return x
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type AlpacaConfig struct {
	ApiKey    string
	ApiSecret string
	Endpoint  string
}

func (a AlpacaConfig) Enabled() bool {
	return a.ApiKey != "" && a.ApiSecret != ""
}

// EngineConfig holds the tunables of the matching, blending, diff and
// simulation engine.
type EngineConfig struct {
	TopK                   int
	MinConfidence          float64
	ConcentrationThreshold float64
	MinWeight              float64
	MaxWeight              float64
	MaxIterations          int

	MinTradeThresholdPct  float64
	DefaultReferencePrice float64

	RiskFreeRate          float64
	MaxHorizonDays        int
	RebalanceIntervalDays int
	PeriodsPerYear        int
	ProjectionSeed        int64
	InitialCapital        float64
	MinHistoryPoints      int
	DefaultExpectedReturn float64
	DefaultVolatility     float64
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TopK:                   3,
		MinConfidence:          0.3,
		ConcentrationThreshold: 0.40,
		MinWeight:              0.05,
		MaxWeight:              0.30,
		MaxIterations:          10,
		MinTradeThresholdPct:   1.0,
		DefaultReferencePrice:  100,
		RiskFreeRate:           0,
		MaxHorizonDays:         3650,
		RebalanceIntervalDays:  30,
		PeriodsPerYear:         252,
		ProjectionSeed:         42,
		InitialCapital:         10000,
		MinHistoryPoints:       20,
		DefaultExpectedReturn:  0.07,
		DefaultVolatility:      0.15,
	}
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.S().Warn("no .env file found, using system environment variables")
	}

	port, err := getEnvInt("PORT", 3009)
	if err != nil {
		return nil, err
	}

	timeout, err := getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                   os.Getenv("REBALANCE_ENV"),
		Port:                  port,
		RequestTimeoutSeconds: timeout,
		Db: DbConfig{
			Host:      os.Getenv("DB_HOST"),
			User:      getEnv("DB_USER", "postgres"),
			Port:      getEnv("DB_PORT", "5432"),
			Password:  os.Getenv("DB_PASSWORD"),
			Database:  getEnv("DB_NAME", "postgres"),
			EnableSsl: strings.EqualFold(os.Getenv("DB_ENABLE_SSL"), "true"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Alpaca: AlpacaConfig{
			ApiKey:    os.Getenv("APCA_API_KEY_ID"),
			ApiSecret: os.Getenv("APCA_API_SECRET_KEY"),
			Endpoint:  getEnv("APCA_DATA_URL", "https://data.alpaca.markets"),
		},
		RiskFreeRateSource: getEnv("RISK_FREE_RATE_SOURCE", "fixed"),
		DataDir:            getEnv("DATA_DIR", "data"),
		Engine:             *engine,
	}

	return cfg, nil
}

func loadEngineConfig() (*EngineConfig, error) {
	c := DefaultEngineConfig()
	var err error

	floats := []struct {
		key string
		dst *float64
	}{
		{"ENGINE_MIN_CONFIDENCE", &c.MinConfidence},
		{"ENGINE_CONCENTRATION_THRESHOLD", &c.ConcentrationThreshold},
		{"ENGINE_MIN_WEIGHT", &c.MinWeight},
		{"ENGINE_MAX_WEIGHT", &c.MaxWeight},
		{"ENGINE_MIN_TRADE_THRESHOLD_PCT", &c.MinTradeThresholdPct},
		{"ENGINE_DEFAULT_REFERENCE_PRICE", &c.DefaultReferencePrice},
		{"ENGINE_RISK_FREE_RATE", &c.RiskFreeRate},
		{"ENGINE_INITIAL_CAPITAL", &c.InitialCapital},
		{"ENGINE_DEFAULT_EXPECTED_RETURN", &c.DefaultExpectedReturn},
		{"ENGINE_DEFAULT_VOLATILITY", &c.DefaultVolatility},
	}
	for _, f := range floats {
		if *f.dst, err = getEnvFloat(f.key, *f.dst); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ENGINE_TOP_K", &c.TopK},
		{"ENGINE_MAX_ITERATIONS", &c.MaxIterations},
		{"ENGINE_MAX_HORIZON_DAYS", &c.MaxHorizonDays},
		{"ENGINE_REBALANCE_INTERVAL_DAYS", &c.RebalanceIntervalDays},
		{"ENGINE_PERIODS_PER_YEAR", &c.PeriodsPerYear},
		{"ENGINE_MIN_HISTORY_POINTS", &c.MinHistoryPoints},
	}
	for _, i := range ints {
		if *i.dst, err = getEnvInt(i.key, *i.dst); err != nil {
			return nil, err
		}
	}

	seed, err := getEnvInt("ENGINE_PROJECTION_SEED", int(c.ProjectionSeed))
	if err != nil {
		return nil, err
	}
	c.ProjectionSeed = int64(seed)

	if c.MinWeight > c.MaxWeight {
		return nil, fmt.Errorf("ENGINE_MIN_WEIGHT (%f) must not exceed ENGINE_MAX_WEIGHT (%f)", c.MinWeight, c.MaxWeight)
	}

	return &c, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float for %s: %w", key, err)
	}
	return f, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %w", key, err)
	}
	return i, nil
}
