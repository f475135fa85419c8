package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"loancrm_backend/internal/crmsync"
	"loancrm_backend/platform/logger"
)

// QueueConfig is the slice of configuration the queue client and worker need.
type QueueConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// Client enqueues background tasks.
type Client struct {
	client *asynq.Client
	queue  string
}

// ProcessEnqueuer hands processing runs to the worker pool.
type ProcessEnqueuer interface {
	EnqueueProcessApplication(ctx context.Context, payload ProcessApplicationPayload) error
}

func NewClient(cfg QueueConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueProcessApplication(ctx context.Context, payload ProcessApplicationPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewProcessApplicationTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func (c *Client) enqueueCRMDispatch(ctx context.Context, payload crmsync.Payload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCRMDispatchTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// QueueDispatcher is the queue-backed crmsync.Dispatcher. Enqueue failures
// are logged and dropped, matching the fire-and-forget dispatch contract.
type QueueDispatcher struct {
	client *Client
	log    *logger.Logger
}

func NewQueueDispatcher(client *Client, log *logger.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, log: log}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, payload crmsync.Payload) {
	if err := d.client.enqueueCRMDispatch(ctx, payload); err != nil {
		d.log.DispatchError(payload.Trigger, payload.ApplicationID, err)
	}
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
