package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Trading universe and cycle
	Tickers       []string
	CycleInterval time.Duration
	CycleDeadline time.Duration
	WorkerCount   int
	InitialCash   float64

	// Signal thresholds
	ConsultThreshold  int // below this confidence the AI is consulted
	MinTradeThreshold int // below this confidence no trade is placed

	// Mean reversion gate
	ZScoreThreshold float64

	// Risk limits
	MaxPositionFraction float64 // hard cap on the Kelly fraction
	MaxVaRFraction      float64 // daily VaR limit as fraction of equity
	VaRConfidence       float64
	AIVetoMargin        int // AI must beat signal confidence by this margin to veto
	StopLossPct         float64
	TakeProfitPct       float64

	// Execution
	ImpactThresholdValue float64 // order value above which the order is sliced
	SlippageBps          float64

	// AI consultation
	Providers          []ProviderConfig
	ProviderTimeout    time.Duration
	ConsultationBudget time.Duration
}

// ProviderConfig describes one external reasoning provider,
// listed in priority order.
type ProviderConfig struct {
	Name   string
	URL    string
	APIKey string
	Model  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: getEnv("DATABASE_PATH", "./data/daytrader.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("PORT", 8090),
		DevMode:      getEnvAsBool("DEV_MODE", false),

		Tickers:       getEnvAsList("TICKERS", []string{"AAPL", "MSFT", "NVDA"}),
		CycleInterval: getEnvAsDuration("CYCLE_INTERVAL", 60*time.Second),
		CycleDeadline: getEnvAsDuration("CYCLE_DEADLINE", 45*time.Second),
		WorkerCount:   getEnvAsInt("WORKER_COUNT", 4),
		InitialCash:   getEnvAsFloat("INITIAL_CASH", 1000.0),

		ConsultThreshold:  getEnvAsInt("CONSULT_THRESHOLD", 60),
		MinTradeThreshold: getEnvAsInt("MIN_TRADE_THRESHOLD", 65),

		ZScoreThreshold: getEnvAsFloat("ZSCORE_THRESHOLD", 2.0),

		MaxPositionFraction: getEnvAsFloat("MAX_POSITION_FRACTION", 0.20),
		MaxVaRFraction:      getEnvAsFloat("MAX_VAR_FRACTION", 0.02),
		VaRConfidence:       getEnvAsFloat("VAR_CONFIDENCE", 0.95),
		AIVetoMargin:        getEnvAsInt("AI_VETO_MARGIN", 0),
		StopLossPct:         getEnvAsFloat("STOP_LOSS_PCT", -2.0),
		TakeProfitPct:       getEnvAsFloat("TAKE_PROFIT_PCT", 4.0),

		ImpactThresholdValue: getEnvAsFloat("IMPACT_THRESHOLD_VALUE", 5000.0),
		SlippageBps:          getEnvAsFloat("SLIPPAGE_BPS", 5.0),

		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 4*time.Second),
		ConsultationBudget: getEnvAsDuration("CONSULTATION_BUDGET", 10*time.Second),
	}

	cfg.Providers = loadProviders()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadProviders reads the ordered provider list. AI_PROVIDERS names the
// priority order; each provider reads its own URL/key/model variables,
// e.g. AI_PROVIDERS=gemini,openai with GEMINI_URL, GEMINI_API_KEY, GEMINI_MODEL.
func loadProviders() []ProviderConfig {
	names := getEnvAsList("AI_PROVIDERS", nil)
	providers := make([]ProviderConfig, 0, len(names))
	for _, name := range names {
		prefix := strings.ToUpper(name)
		providers = append(providers, ProviderConfig{
			Name:   name,
			URL:    getEnv(prefix+"_URL", ""),
			APIKey: getEnv(prefix+"_API_KEY", ""),
			Model:  getEnv(prefix+"_MODEL", ""),
		})
	}
	return providers
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("TICKERS must name at least one ticker")
	}
	if c.CycleDeadline > c.CycleInterval {
		return fmt.Errorf("CYCLE_DEADLINE (%s) must not exceed CYCLE_INTERVAL (%s)", c.CycleDeadline, c.CycleInterval)
	}
	if c.MaxPositionFraction <= 0 || c.MaxPositionFraction > 1 {
		return fmt.Errorf("MAX_POSITION_FRACTION must be in (0, 1]")
	}
	if c.VaRConfidence <= 0.5 || c.VaRConfidence >= 1 {
		return fmt.Errorf("VAR_CONFIDENCE must be in (0.5, 1)")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
