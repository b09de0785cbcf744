package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

// Notifier is told about every committed mutation.
type Notifier interface {
	Publish(ctx context.Context, c domain.Change) error
}

// RedisNotifier publishes changes on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Publish(ctx context.Context, c domain.Change) error {
	data, err := codec.Marshal(c)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, data).Err()
}

type messageEnqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueNotifier sends changes to an Azure storage queue.
type QueueNotifier struct {
	queue messageEnqueuer
}

// NewQueueNotifier connects to queue using the storage connection string.
func NewQueueNotifier(connStr, queue string) (*QueueNotifier, error) {
	q, err := NewQueueClient(connStr, queue)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

func (n *QueueNotifier) Publish(ctx context.Context, c domain.Change) error {
	data, err := codec.Marshal(c)
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
