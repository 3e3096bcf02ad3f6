package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// AnalyzeUncategorized asks the model to suggest categories. Nothing is saved;
// the client applies suggestions through the category update route.
func (h *Handler) AnalyzeUncategorized(c *fiber.Ctx) error {
	res, err := h.Analyzer.Analyze(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(res)
}
