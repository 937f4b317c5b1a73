package queue

import (
	"github.com/hibiken/asynq"
	"github.com/recastlabs/recast/pkg/config"
)

// Queue lanes. Deletions are low volume but must never starve behind a
// transcript burst, so each lane has its own weight.
const (
	QueueTranscripts = "transcripts"
	QueuePublishing  = "publishing"
	QueueDeletions   = "deletions"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

func NewServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueDeletions:   3,
				QueuePublishing:  3,
				QueueTranscripts: 4,
			},
		},
	)
}

// NewScheduler builds the periodic-entry scheduler that feeds the due
// sweeps (pending deletions, scheduled posts) into the lanes.
func NewScheduler(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), nil)
}

func NewInspector(cfg *config.RedisConfig) *asynq.Inspector {
	return asynq.NewInspector(redisOpt(cfg))
}
