package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joripage/skin-exchange/pkg/exchange/funding"
	"github.com/joripage/skin-exchange/pkg/exchange/marketmaker"
	"github.com/joripage/skin-exchange/pkg/exchange/risk"
	postgres_wrapper "github.com/joripage/skin-exchange/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/skin-exchange/pkg/infra/redis"
)

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	EventTopic string   `yaml:"event_topic"`
	RiskTopic  string   `yaml:"risk_topic"`
	DLQTopic   string   `yaml:"dlq_topic"`
	GroupID    string   `yaml:"group_id"`
}

type SchedulerConfig struct {
	LiquidationCheck  time.Duration `yaml:"liquidation_check"`
	MarketMaking      time.Duration `yaml:"market_making"`
	MarketMakingGap   time.Duration `yaml:"market_making_gap"`
	FundingRate       time.Duration `yaml:"funding_rate"`
	ConditionalOrders time.Duration `yaml:"conditional_orders"`
	HealthLog         time.Duration `yaml:"health_log"`
}

type OracleConfig struct {
	PriceTTL     time.Duration      `yaml:"price_ttl"`
	StaticPrices map[string]float64 `yaml:"static_prices"`
}

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	ExchangeDB  *postgres_wrapper.PostgresConfig `yaml:"exchange_db"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
	Kafka       *KafkaConfig                     `yaml:"kafka"`
	Scheduler   *SchedulerConfig                 `yaml:"scheduler"`
	Oracle      *OracleConfig                    `yaml:"oracle"`
	MarketMaker *marketmaker.Config              `yaml:"market_maker"`
	Funding     *funding.Config                  `yaml:"funding"`
	Risk        *risk.Config                     `yaml:"risk"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
