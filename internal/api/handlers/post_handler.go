package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"channelpress/internal/posts"
	"channelpress/internal/queue"
	"channelpress/internal/transfer"
)

type PostHandler struct {
	s           posts.Service
	AsynqClient *asynq.Client
}

func NewPostHandler(service posts.Service, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{s: service, AsynqClient: asynqClient}
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	var input transfer.PostCreation
	if err := c.BodyParser(&input); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	result, err := h.s.Create(c.Context(), orgID, &input)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	for _, sp := range result.Scheduled {
		err := queue.EnqueuePublish(h.AsynqClient,
			queue.PublishPostPayload{ScheduledPostID: sp.ID}, sp.ScheduledAt)
		if err != nil {
			slog.Info(err.Error())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error scheduling post",
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)
	postID := c.Query("id")

	if postID != "" {
		post, err := h.s.Get(c.Context(), orgID, postID)
		if err != nil {
			if errors.Is(err, posts.ErrPostNotFound) {
				return c.SendStatus(fiber.StatusNotFound)
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to fetch post",
			})
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	list, err := h.s.List(c.Context(), orgID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(list)
}

// ScheduledStatus reports one scheduled post's pipeline state plus its most
// recent metrics snapshot when one exists.
func (h *PostHandler) ScheduledStatus(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	info, err := h.s.ScheduledInfo(c.Context(), orgID, c.Params("id"))
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to fetch scheduled post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(info)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)
	postID := c.Query("id")

	err := h.s.Archive(c.Context(), orgID, postID)
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
