package events

import (
	"context"

	"github.com/smallbiznis/bizledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher returns an AMQP publisher when AMQP_URL is set and a noop one otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set, ledger events are disabled")
		return NoopPublisher{}, nil
	}

	pub, err := DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
