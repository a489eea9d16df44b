package bootstrap

import (
	"context"
	"fmt"

	"mailpulse/internal/broker"
	"mailpulse/internal/config"
	"mailpulse/internal/logger"
)

// Base carries what every command opens: the backends for the configured
// stores and, when Kafka is in use, a producer or consumer.
type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Connector *DatabaseConnector
	Conns     *Connections
	Producer  broker.Producer
	Consumer  broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config:    cfg,
		Logger:    log,
		Connector: NewDatabaseConnector(cfg, log),
		Conns:     &Connections{},
	}
}

func (b *Base) InitDatabases(ctx context.Context) error {
	conns, err := b.Connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect databases: %w", err)
	}
	b.Conns = conns
	return nil
}

func (b *Base) InitProducer() error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

func (b *Base) InitConsumer(serviceName string) error {
	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}
	b.Consumer = consumer
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

// Shutdown runs additional first, then closes the broker and the databases.
func (b *Base) Shutdown(ctx context.Context, additional func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	if additional != nil {
		errs = append(errs, additional(ctx)...)
	}
	errs = append(errs, b.ShutdownBroker()...)
	errs = append(errs, b.Connector.ShutdownDatabases(ctx, b.Conns)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
