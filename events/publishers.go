package events

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
	"prism-todo/store"
)

var (
	_ store.Publisher = (*LogPublisher)(nil)
	_ store.Publisher = (*RedisPublisher)(nil)
	_ store.Publisher = (*QueuePublisher)(nil)
	_ store.Publisher = Multi(nil)
	_ store.Publisher = (*Dispatcher)(nil)
)

// LogPublisher writes events to a logrus logger.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.logger.WithFields(log.Fields{
		"event":    ev.Type,
		"task":     ev.EntityID,
		"done":     ev.Data.Done,
		"time":     ev.Time,
		"event_id": ev.ID,
	}).Info("task event")
	return nil
}

// RedisPublisher publishes events on a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := domain.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

type enqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueuePublisher sends each event as a message to an Azure Storage queue.
type QueuePublisher struct {
	queue enqueuer
}

// NewQueuePublisher connects to queue using an Azure Storage connection string.
func NewQueuePublisher(connStr, queue string) (*QueuePublisher, error) {
	if connStr == "" || queue == "" {
		return nil, errors.New("queue publisher: missing connection string or queue name")
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, nil)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: q}, nil
}

func (p *QueuePublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := domain.EncodeEvent(ev)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(payload), nil)
	return err
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []store.Publisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
