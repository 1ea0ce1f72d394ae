package pub

import (
	"context"

	"main/internal/bus"
	"main/pkg/exception"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

const (
	redisKeyPrefix     = "rate:"
	redisChannelPrefix = "rates."
)

// RedisPublisher keeps the latest rate per symbol in a hash and fans each
// update out on a per-symbol channel for live consumers.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher builds a publisher over an existing client.
func NewRedisPublisher(client *redis.Client) (*RedisPublisher, error) {
	if client == nil {
		return nil, exception.ErrInvalidArgument
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event bus.Event) error {
	if p == nil {
		return exception.ErrNilInstance
	}
	body, err := encode(event)
	if err != nil {
		return err
	}
	symbol := event.Rate.Name
	if err := p.client.HSet(ctx, redisKeyPrefix+symbol,
		"bid", event.Rate.Bid,
		"ask", event.Rate.Ask,
		"ts", event.Rate.Ts.UnixMilli(),
	).Err(); err != nil {
		return errors.Wrap(err, "hset latest rate").With("symbol", symbol)
	}
	if err := p.client.Publish(ctx, redisChannelPrefix+symbol, body).Err(); err != nil {
		return errors.Wrap(err, "publish rate channel").With("symbol", symbol)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
