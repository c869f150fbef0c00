package queue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// EnqueuePublish schedules one publish task. Enqueueing is idempotent per
// scheduled post: a duplicate of a still-live task is dropped, not an error.
func EnqueuePublish(asynqClient *asynq.Client, payload PublishPostPayload, at time.Time) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = asynqClient.Enqueue(task,
		asynq.ProcessAt(at),
		asynq.TaskID(PublishTaskID(payload.ScheduledPostID)),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("publish task already enqueued", "scheduled_post_id", payload.ScheduledPostID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("publish task enqueued", "scheduled_post_id", payload.ScheduledPostID, "at", at)
	return nil
}
