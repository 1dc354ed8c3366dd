package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
)

// Redis stores each user's document under a key and announces writes on a
// channel of the same name.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("replica: redis ping %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, logger: logger}, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func stateKey(userID string) string {
	return "onyx:state:" + userID
}

// Push sets the document and publishes it in one transaction.
func (r *Redis) Push(ctx context.Context, userID string, s *models.AppState) error {
	if userID == "" {
		return fmt.Errorf("replica: empty user id: %w", apperr.ErrInvalid)
	}
	data, err := encode(s)
	if err != nil {
		return err
	}
	key := stateKey(userID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Publish(ctx, key, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replica: redis push: %w", err)
	}
	return nil
}

// Subscribe listens on the user's channel, then reads the current document
// so no write between the two is missed.
func (r *Redis) Subscribe(ctx context.Context, userID string, onChange OnChange) (Unsubscribe, error) {
	if userID == "" {
		return nil, fmt.Errorf("replica: empty user id: %w", apperr.ErrInvalid)
	}
	key := stateKey(userID)
	ps := r.client.Subscribe(ctx, key)

	stop := startFeed(ctx, func(ctx context.Context) {
		defer ps.Close()
		err := r.follow(ctx, ps, key, onChange)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("replica: redis feed ended", slog.String("user", userID), slog.Any("error", err))
		onChange(nil, err)
	}, func() {
		// ReceiveMessage ignores cancellation; closing the PubSub unblocks it.
		_ = ps.Close()
	})
	return stop, nil
}

func (r *Redis) follow(ctx context.Context, ps *redis.PubSub, key string, onChange OnChange) error {
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		onChange(nil, nil)
	case err != nil:
		return fmt.Errorf("initial read: %w", err)
	default:
		s, err := decode(data)
		if err != nil {
			return err
		}
		onChange(s, nil)
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		s, err := decode([]byte(msg.Payload))
		if err != nil {
			r.logger.Warn("replica: bad document on channel", slog.String("error", err.Error()))
			continue
		}
		onChange(s, nil)
	}
}
