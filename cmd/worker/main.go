package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/config"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/repo"
	postgres_wrapper "github.com/joripage/skin-exchange/pkg/infra/postgres"
	kafkawrapper "github.com/joripage/skin-exchange/pkg/kafka_wrapper"
	"github.com/joripage/skin-exchange/pkg/logging"
)

// The worker archives order lifecycle events published by the engine into the
// order_events table. Replays are deduplicated on event id.
func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	log := logging.Init(cfg.ServiceName+"-worker", logging.INFO)
	defer log.Sync() // nolint

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	db, err := postgres_wrapper.InitPostgres(cfg.ExchangeDB)
	if err != nil {
		zap.S().Errorf("init db fail with err: %v", err)
		panic(err)
	}
	st := repo.NewSQLStore(db)

	consumer := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    cfg.Kafka.GroupID,
		Topic:      cfg.Kafka.EventTopic,
		MaxRetries: 5,
		DLQTopic:   cfg.Kafka.DLQTopic,
	})
	defer consumer.Close() // nolint

	go func() {
		err := consumer.Run(ctx, func(ctx context.Context, m kafkawrapper.Message) error {
			var ev model.OrderEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				log.Warn("drop malformed event", zap.Error(err))
				return nil
			}
			return st.Events().Create(ctx, &ev)
		})
		if err != nil {
			log.Error("consumer stopped", zap.Error(err))
		}
	}()

	<-sigs
	cancel()
}
