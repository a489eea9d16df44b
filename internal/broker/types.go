package broker

import (
	"context"

	"mailpulse/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, env models.DocumentEnvelope) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, env models.DocumentEnvelope) error
