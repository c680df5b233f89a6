package handlers

import (
	"strings"

	"github.com/edusoko/course_market/services"
	"github.com/gofiber/fiber/v2"
)

func GetConversionRate(c *fiber.Ctx) error {
	rates, err := services.FetchRates()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch exchange rates"})
	}

	currency := strings.ToUpper(c.Query("currency", "KES"))
	rate, ok := rates[currency]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": currency + " rate not available"})
	}

	return c.JSON(fiber.Map{"base": "USD", "currency": currency, "rate": rate})
}
