// Package notify tells every running instance that a user's collection
// changed so their hubs can push a fresh snapshot.
package notify

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const Channel = "linkshelf:resources"

type (
	Notifier interface {
		Notify(ctx context.Context, userID uint64) error
	}

	// Publisher is the receiving side, usually the hub.
	Publisher interface {
		Publish(userID uint64)
	}

	// Local hands changes straight to the in-process publisher.
	Local struct {
		publisher Publisher
	}

	// Redis broadcasts changes over pub/sub. Every instance, including the
	// sender, learns about them through Listen.
	Redis struct {
		client *redis.Client
		logger *zap.SugaredLogger
	}
)

func NewLocal(p Publisher) *Local {
	return &Local{publisher: p}
}

func (l *Local) Notify(_ context.Context, userID uint64) error {
	l.publisher.Publish(userID)
	return nil
}

func NewRedis(client *redis.Client, logger *zap.SugaredLogger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
	}
}

func (r *Redis) Notify(ctx context.Context, userID uint64) error {
	if err := r.client.Publish(ctx, Channel, strconv.FormatUint(userID, 10)).Err(); err != nil {
		return errors.Wrap(err, "publish change")
	}
	return nil
}

// Listen forwards change messages to p until ctx is done.
func (r *Redis) Listen(ctx context.Context, p Publisher) error {
	sub := r.client.Subscribe(ctx, Channel)
	defer sub.Close()

	// wait for the subscription to be confirmed so no message is missed
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, err := strconv.ParseUint(msg.Payload, 10, 64)
			if err != nil {
				r.logger.Warnw("bad change message", "payload", msg.Payload)
				continue
			}
			p.Publish(userID)
		}
	}
}
