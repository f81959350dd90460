package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/automograph/mograph/internal/core/domain"
)

// FailedJob is one terminally failed pipeline job parked for a later
// rescan run.
type FailedJob struct {
	Spec     domain.JobSpec `json:"spec"`
	Category string         `json:"category"`
	RawError string         `json:"raw_error"`
	FailedAt time.Time      `json:"failed_at"`
}

// FailedJobRepo parks terminally failed jobs in Redis so a later
// `mograph rescan` can replay them.
type FailedJobRepo struct {
	rdb *redis.Client
}

// NewFailedJobRepo creates a Redis-backed failed job repository.
func NewFailedJobRepo(client *Client) *FailedJobRepo {
	return &FailedJobRepo{rdb: client.rdb}
}

const failedJobsKey = "mograph:failed_jobs"

func jobKey(runID string) string {
	return fmt.Sprintf("mograph:failed_job:%s", runID)
}

// Add parks a failed job. Oldest failures sort first so a rescan replays
// them in failure order.
func (r *FailedJobRepo) Add(ctx context.Context, fj *FailedJob) error {
	data, err := json.Marshal(fj)
	if err != nil {
		return fmt.Errorf("failed to marshal failed job: %w", err)
	}

	if err := r.rdb.Set(ctx, jobKey(fj.Spec.RunID), data, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set failed job: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, failedJobsKey, redis.Z{
		Score:  float64(fj.FailedAt.Unix()),
		Member: fj.Spec.RunID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	return nil
}

// Pop removes and returns the oldest parked job, or nil when the queue
// is empty. Queue entries whose payload already expired are dropped and
// skipped.
func (r *FailedJobRepo) Pop(ctx context.Context) (*FailedJob, error) {
	for {
		ids, err := r.rdb.ZRange(ctx, failedJobsKey, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange failed: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		id := ids[0]

		if err := r.rdb.ZRem(ctx, failedJobsKey, id).Err(); err != nil {
			return nil, fmt.Errorf("zrem failed: %w", err)
		}

		data, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failed job: %w", err)
		}
		_ = r.rdb.Del(ctx, jobKey(id)).Err()

		var fj FailedJob
		if err := json.Unmarshal(data, &fj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed job: %w", err)
		}
		return &fj, nil
	}
}

// Count returns the number of parked jobs.
func (r *FailedJobRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, failedJobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
