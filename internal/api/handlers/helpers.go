package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func GetOrganizationID(c *fiber.Ctx) string {
	orgID, _ := c.Locals("organization_id").(string)
	return orgID
}
