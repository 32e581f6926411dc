package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
)

const (
	channelPrefix       = "evvalet:"
	driverLocationTTL   = time.Hour
	driverLocationKeyFm = "driver:location:%s"
)

// NewRedisClient connects to the Redis instance at url and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisBroadcaster carries events between API instances over Redis pub/sub,
// one channel per topic.
type RedisBroadcaster struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewRedisBroadcaster(client *redis.Client, log logrus.FieldLogger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+string(event.Topic), data).Err()
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic models.Topic) (<-chan models.Event, error) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+string(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan models.Event, subscriberBuffer)
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.WithError(err).WithField("channel", msg.Channel).Warn("undecodable event on channel")
					continue
				}
				select {
				case out <- event:
				default:
					b.log.WithField("topic", topic).Warn("subscriber too slow, event dropped")
				}
			}
		}
	}()
	return out, nil
}

// DriverLocation is the cached last known position of a driver.
type DriverLocation struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated"`
}

// RedisLocationCache stores the last known position of each driver.
type RedisLocationCache struct {
	client *redis.Client
}

func NewRedisLocationCache(client *redis.Client) *RedisLocationCache {
	return &RedisLocationCache{client: client}
}

func (c *RedisLocationCache) SetDriverLocation(ctx context.Context, driverID string, lat, lng float64, at time.Time) error {
	data, err := json.Marshal(DriverLocation{Lat: lat, Lng: lng, UpdatedAt: at})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(driverLocationKeyFm, driverID), data, driverLocationTTL).Err()
}

// GetDriverLocation returns redis.Nil when the driver has no fresh position.
func (c *RedisLocationCache) GetDriverLocation(ctx context.Context, driverID string) (*DriverLocation, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(driverLocationKeyFm, driverID)).Bytes()
	if err != nil {
		return nil, err
	}
	var loc DriverLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}
