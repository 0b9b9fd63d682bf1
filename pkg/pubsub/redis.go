package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub implements PubSub using Redis pattern subscriptions.
type RedisPubSub struct {
	client *redis.Client
	mu     sync.Mutex
	sub    *redis.PubSub
}

// NewRedisPubSub creates a new Redis-based PubSub instance.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{client: client}, nil
}

// Publish publishes an event to the group's fan-out channel.
func (r *RedisPubSub) Publish(ctx context.Context, group string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.client.Publish(ctx, GroupChannel(group), data).Err()
}

// SubscribeGroups subscribes to all group fan-out channels.
func (r *RedisPubSub) SubscribeGroups(ctx context.Context) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		r.sub.Close()
	}

	sub := r.client.PSubscribe(ctx, GroupChannelPattern)

	// Confirm the subscription before consuming so a broken connection
	// surfaces here rather than as a silently empty channel.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to group channels: %w", err)
	}

	r.sub = sub

	eventCh := make(chan *Event, 100)
	go r.processMessages(ctx, sub, eventCh)

	return eventCh, nil
}

// Close closes the active subscription and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}

	return r.client.Close()
}

// processMessages reads messages from the Redis pubsub and sends them to the event channel.
func (r *RedisPubSub) processMessages(ctx context.Context, sub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			if event.Group == "" {
				if group, ok := GroupFromChannel(msg.Channel); ok {
					event.Group = group
				}
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip message
			}
		}
	}
}
