package queue

import (
	"channelpress/internal/channel"
	"channelpress/internal/repository"
	"channelpress/pkg/crypto"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	ScheduledPostID string `json:"scheduled_post_id"`
}

// PublishTaskID derives the dedupe key for a scheduled post. The broker
// rejects a second enqueue with the same id while the first is still live,
// which keeps double-submits from publishing twice.
func PublishTaskID(scheduledPostID string) string {
	return "publish-post-" + scheduledPostID
}

type Queue struct {
	sp       repository.ScheduledPostRepository
	pr       repository.PostRepository
	ch       repository.ChannelRepository
	in       repository.IntegrationRepository
	registry *channel.Registry
	cipher   *crypto.Cipher
}

func NewQueue(
	sp repository.ScheduledPostRepository,
	pr repository.PostRepository,
	ch repository.ChannelRepository,
	in repository.IntegrationRepository,
	registry *channel.Registry,
	cipher *crypto.Cipher) *Queue {
	return &Queue{
		sp:       sp,
		pr:       pr,
		ch:       ch,
		in:       in,
		registry: registry,
		cipher:   cipher,
	}
}
