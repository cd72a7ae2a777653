package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// redisClient implements Client using Redis
type redisClient struct {
	client    *redis.Client
	queueName string
	logger    *slog.Logger
}

// Connect parses the Redis URL and verifies the connection
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisClient creates a queue client over an existing Redis connection
func NewRedisClient(client *redis.Client, queueName string, logger *slog.Logger) Client {
	logger.Info("redis queue ready",
		slog.String("addr", client.Options().Addr),
		slog.String("queue", queueName),
	)

	return &redisClient{
		client:    client,
		queueName: queueName,
		logger:    logger,
	}
}

// Publish sends a campaign job to the queue
func (c *redisClient) Publish(ctx context.Context, job *models.CampaignJob) error {
	// Serialize job to JSON
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// Push to Redis list (LPUSH for FIFO with BRPOP)
	if err := c.client.LPush(ctx, c.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	c.logger.Debug("job published to queue",
		slog.Int64("campaign_id", job.CampaignID),
		slog.String("trigger", job.Trigger),
	)

	return nil
}

// Consume receives jobs from the queue and processes them with the handler
// concurrency controls how many jobs can be processed simultaneously (max 5)
func (c *redisClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	// Validate concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 5 {
		concurrency = 5
	}

	c.logger.Info("starting queue consumer",
		slog.String("queue", c.queueName),
		slog.Int("concurrency", concurrency),
	)

	// Semaphore to limit concurrent processing
	semaphore := make(chan struct{}, concurrency)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped by context, waiting for in-flight jobs to complete")
			// Wait for all in-flight jobs to complete
			for i := 0; i < concurrency; i++ {
				semaphore <- struct{}{}
			}
			c.logger.Info("all in-flight jobs completed")
			return ctx.Err()

		default:
			// Blocking pop from Redis list (blocks for 1 second if empty)
			result, err := c.client.BRPop(ctx, 1*time.Second, c.queueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					// Timeout, no messages available - continue
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					c.logger.Info("consumer stopped by context")
					// Wait for all in-flight jobs to complete
					for i := 0; i < concurrency; i++ {
						semaphore <- struct{}{}
					}
					return err
				}
				c.logger.Error("failed to pop from queue", slog.String("error", err.Error()))
				// Sleep briefly to avoid tight loop on persistent errors
				time.Sleep(1 * time.Second)
				continue
			}

			// BRPOP returns [queueName, value]
			if len(result) < 2 {
				c.logger.Error("unexpected BRPOP result format")
				continue
			}

			// Deserialize job
			var job models.CampaignJob
			if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
				c.logger.Error("failed to unmarshal job",
					slog.String("error", err.Error()),
					slog.String("data", result[1]),
				)
				continue
			}

			c.logger.Debug("job received from queue",
				slog.Int64("campaign_id", job.CampaignID),
				slog.String("trigger", job.Trigger),
			)

			// Acquire semaphore slot (blocks if all slots are busy)
			semaphore <- struct{}{}

			// Process job concurrently in a goroutine
			go func(job models.CampaignJob) {
				defer func() { <-semaphore }() // Release semaphore slot when done

				// Process job with handler
				if err := handler(ctx, &job); err != nil {
					c.logger.Error("handler failed to process job",
						slog.Int64("campaign_id", job.CampaignID),
						slog.String("error", err.Error()),
					)
					// The job is already popped; the next scheduled pass picks the campaign up again
				}
			}(job)
		}
	}
}

// Close closes the Redis connection
func (c *redisClient) Close() error {
	c.logger.Info("closing Redis connection")
	return c.client.Close()
}

// Health checks if Redis is healthy
func (c *redisClient) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Length returns the number of jobs waiting in the queue
func (c *redisClient) Length(ctx context.Context) (int64, error) {
	length, err := c.client.LLen(ctx, c.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}
