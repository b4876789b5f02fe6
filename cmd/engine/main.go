package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/config"
	"github.com/joripage/skin-exchange/pkg/exchange"
	"github.com/joripage/skin-exchange/pkg/exchange/conditional"
	"github.com/joripage/skin-exchange/pkg/exchange/funding"
	"github.com/joripage/skin-exchange/pkg/exchange/journal"
	"github.com/joripage/skin-exchange/pkg/exchange/marketmaker"
	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/repo"
	"github.com/joripage/skin-exchange/pkg/exchange/risk"
	postgres_wrapper "github.com/joripage/skin-exchange/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/skin-exchange/pkg/infra/redis"
	kafkawrapper "github.com/joripage/skin-exchange/pkg/kafka_wrapper"
	"github.com/joripage/skin-exchange/pkg/logging"
	"github.com/joripage/skin-exchange/pkg/marketdata"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	go func() {
		http.ListenAndServe("localhost:6060", nil)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	log := logging.Init(cfg.ServiceName, logging.INFO)
	defer log.Sync() // nolint

	db := postgres_wrapper.InitPostgresWithBackoff(cfg.ExchangeDB)
	st := repo.NewSQLStore(db)

	var producer *kafkawrapper.Producer
	if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		producer = kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
		})
		defer producer.Close() // nolint
	}

	journalOpts := []journal.Option{}
	if producer != nil {
		journalOpts = append(journalOpts, journal.WithProducer(producer, cfg.Kafka.EventTopic))
	}
	jrnl := journal.New(log, journalOpts...)

	matchOpts := []matching.Option{matching.WithJournal(jrnl)}
	oracleOpts := []oracle.Option{}
	if cfg.Redis != nil {
		rdb, err := redis_wrapper.InitRedis(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, price cache disabled", zap.Error(err))
		} else {
			ttl := time.Minute
			if cfg.Oracle != nil && cfg.Oracle.PriceTTL > 0 {
				ttl = cfg.Oracle.PriceTTL
			}
			cache := marketdata.NewPriceCache(rdb, ttl)
			matchOpts = append(matchOpts, matching.WithMarkPriceCache(cache))
			oracleOpts = append(oracleOpts, oracle.WithCache(cache))
		}
	}

	matcher := matching.NewEngine(st, log, matchOpts...)

	var sources []oracle.QuoteSource
	if cfg.Oracle != nil && len(cfg.Oracle.StaticPrices) > 0 {
		sources = append(sources, oracle.NewFixedSource("static", cfg.Oracle.StaticPrices))
	}
	orc := oracle.New(log, sources, oracleOpts...)

	riskCfg := risk.DefaultConfig()
	if cfg.Risk != nil {
		riskCfg = *cfg.Risk
	}
	riskEngine := risk.NewEngine(st, matcher, riskCfg, log)
	if producer != nil && cfg.Kafka.RiskTopic != "" {
		riskEngine.SetNotifier(risk.NewKafkaNotifier(producer, cfg.Kafka.RiskTopic))
	} else {
		riskEngine.SetNotifier(risk.NewLogNotifier(log))
	}

	mmCfg := marketmaker.DefaultConfig("market-maker")
	if cfg.MarketMaker != nil {
		mmCfg = *cfg.MarketMaker
	}
	mm := marketmaker.New(st, matcher, orc, mmCfg, log)

	fundingCfg := funding.DefaultConfig()
	if cfg.Funding != nil {
		fundingCfg = *cfg.Funding
	}
	fundingMgr := funding.NewManager(st, matcher, orc, fundingCfg, log)

	conditionalMgr := conditional.NewManager(st, matcher, log)

	intervals := exchange.DefaultIntervals()
	if s := cfg.Scheduler; s != nil {
		if s.LiquidationCheck > 0 {
			intervals.Liquidation = s.LiquidationCheck
		}
		if s.MarketMaking > 0 {
			intervals.MarketMaking = s.MarketMaking
		}
		if s.MarketMakingGap > 0 {
			intervals.MarketMakingGap = s.MarketMakingGap
		}
		if s.FundingRate > 0 {
			intervals.Funding = s.FundingRate
		}
		if s.ConditionalOrders > 0 {
			intervals.ConditionalCheck = s.ConditionalOrders
		}
		if s.HealthLog > 0 {
			intervals.HealthLog = s.HealthLog
		}
	}

	x := exchange.New(st, matcher, riskEngine, mm, fundingMgr, conditionalMgr, orc, intervals, log)

	if err := x.StartScheduler(ctx); err != nil {
		panic(err)
	}
	fmt.Println("Exchange engine started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	x.StopScheduler()
	cancel()

	fmt.Println("Exited cleanly.")
}
