package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-equalize/pkg/common"
)

type Options struct {
	Addr   string
	Stream string
	Group  string
}

type RedisClient struct {
	client *redis.Client
	stream string
	group  string
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client: client,
		stream: opts.Stream,
		group:  opts.Group,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// EnsureGroup creates the job stream and its consumer group. An existing
// group is not an error.
func (r *RedisClient) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", r.group, r.stream, err)
	}
	return nil
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	result := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{"data": b},
	})

	return result.Val(), result.Err()
}

// ReadJob blocks up to block for the next undelivered job. It returns a nil
// job and nil error when nothing arrived. A job that fails to decode is
// returned with its id so the caller can ack it away.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: consumer,
		Streams:  []string{r.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil || len(result) == 0 || len(result[0].Messages) == 0 {
		return "", nil, err
	}

	msg := result[0].Messages[0]
	job, err := decodeJob(msg.Values["data"])
	if err != nil {
		return msg.ID, nil, err
	}
	return msg.ID, job, nil
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.stream, r.group, id).Err()
}

// ClaimStaleJobs moves jobs that have been pending longer than minIdle to
// consumer and returns them.
func (r *RedisClient) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Idle:   minIdle,
		Count:  int64(count),
		Start:  "-",
		End:    "+",
	}).Result()

	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]ClaimedJob, 0, len(claimed))
	for _, c := range claimed {
		job, err := decodeJob(c.Values["data"])
		jobs = append(jobs, ClaimedJob{ID: c.ID, Job: job, Err: err})
	}
	return jobs, nil
}

// ClaimedJob is a reclaimed stream entry. Err is set when its payload could
// not be decoded.
type ClaimedJob struct {
	ID  string
	Job *common.JobMessage
	Err error
}

// Pending reports how many delivered jobs are still unacknowledged.
func (r *RedisClient) Pending(ctx context.Context) (int64, error) {
	res, err := r.client.XPending(ctx, r.stream, r.group).Result()
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

func decodeJob(v interface{}) (*common.JobMessage, error) {
	var job common.JobMessage
	if err := json.Unmarshal(bytesFromInterface(v), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
