package broker

import (
	"fmt"

	"mailpulse/internal/config"
	"mailpulse/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Kafka.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer requires a group id")
	}
	return NewKafkaConsumer(cfg.Kafka, log), nil
}
