package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	config "channelpress/configs"
	"channelpress/internal/auth"
	"channelpress/internal/channel"
	"channelpress/internal/platform"
	"channelpress/internal/transfer"
)

const stateCookie = "cp_oauth_state"

type ChannelHandler struct {
	s        channel.Service
	registry *channel.Registry
	cfg      *config.Config
}

func NewChannelHandler(s channel.Service, registry *channel.Registry, cfg *config.Config) *ChannelHandler {
	return &ChannelHandler{s: s, registry: registry, cfg: cfg}
}

// ConnectChannel starts the OAuth flow. The issued state is mirrored into a
// short-lived cookie so the callback can compare both copies.
func (h *ChannelHandler) ConnectChannel(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	plat, err := platform.Parse(c.Params("platform"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	authURL, state, err := h.s.BeginAuth(c.Context(), orgID, plat,
		c.Query("redirectToOnSuccess"), c.Query("redirectToOnDeny"))
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to start authorization",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"auth_url": authURL,
	})
}

func (h *ChannelHandler) CallbackHandler(c *fiber.Ctx) error {
	input := channel.CallbackInput{
		IssuedState:   c.Cookies(stateCookie),
		ReturnedState: c.Query("state"),
		Code:          c.Query("code"),
		OAuth1Token:   c.Query("oauth_token"),
		Denied:        c.Query("error") != "" || c.Query("denied") != "",
	}
	// OAuth1 providers return the verifier under its own name.
	if v := c.Query("oauth_verifier"); v != "" {
		input.Code = v
	}

	c.Cookie(&fiber.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	ch, redirect, err := h.s.CompleteAuth(c.Context(), input)
	if err != nil {
		if errors.Is(err, auth.ErrStateMismatch) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to validate authorization state",
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to connect channel",
		})
	}

	if redirect == "" {
		redirect = h.cfg.FrontendURL + "/channels"
		if ch != nil {
			redirect += "/" + ch.ID
		}
	}
	return c.Redirect(redirect, fiber.StatusTemporaryRedirect)
}

func (h *ChannelHandler) ListChannels(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	channels, err := h.s.List(c.Context(), orgID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch channels",
		})
	}

	return c.Status(fiber.StatusOK).JSON(channels)
}

func (h *ChannelHandler) DeactivateChannel(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	err := h.s.Deactivate(c.Context(), orgID, c.Params("id"))
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to deactivate channel",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *ChannelHandler) DeleteChannel(c *fiber.Ctx) error {
	orgID := GetOrganizationID(c)

	err := h.s.Remove(c.Context(), orgID, c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrChannelNotFound):
			return c.SendStatus(fiber.StatusNotFound)
		case errors.Is(err, channel.ErrChannelInUse):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Channel has pending scheduled posts",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unable to delete channel",
			})
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// ListCapabilities exposes the capability profile of every wired platform so
// clients can validate media and variants before submitting.
func (h *ChannelHandler) ListCapabilities(c *fiber.Ctx) error {
	var out []transfer.PlatformCapabilities
	for _, plat := range h.registry.Platforms() {
		prof, ok := platform.ProfileFor(plat)
		if !ok {
			continue
		}
		variants := make([]string, 0, len(prof.Variants))
		for _, v := range prof.Variants {
			variants = append(variants, string(v))
		}
		out = append(out, transfer.PlatformCapabilities{
			Platform:      string(plat),
			Variants:      variants,
			MaxMedia:      prof.MaxMedia,
			MinMedia:      prof.MinMedia,
			MIMETypes:     prof.MIMETypes,
			MaxMediaBytes: prof.MaxMediaBytes,
			MaxTextLen:    prof.MaxTextLen,
		})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
