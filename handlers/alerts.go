package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) ListAlerts(c *fiber.Ctx) error {
	list, err := h.Alerts.List(c.UserContext(), currentUser(c), c.QueryBool("unread", false))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": list})
}

func (h *Handler) UnreadAlerts(c *fiber.Ctx) error {
	n, err := h.Alerts.UnreadCount(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"count": n}})
}

func (h *Handler) MarkAlertRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Alerts.MarkRead(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Alert marked as read"})
}

func (h *Handler) MarkAllAlertsRead(c *fiber.Ctx) error {
	n, err := h.Alerts.MarkAllRead(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"updated": n}})
}

func (h *Handler) DeleteAlert(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Alerts.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Alert deleted"})
}
