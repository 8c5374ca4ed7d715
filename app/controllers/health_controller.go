package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing service answers.
type Pinger func(ctx context.Context) error

type HealthController struct {
	database Pinger
	cache    Pinger
}

// NewHealthController takes the database and cache probes. A nil cache probe reports "disabled".
func NewHealthController(database, cache Pinger) *HealthController {
	return &HealthController{database: database, cache: cache}
}

// HandleHealth is up when the database is; the cache only degrades rate limiting.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	dbStatus := probe(c.UserContext(), hc.database)
	resp := fiber.Map{
		"database": dbStatus,
		"cache":    probe(c.UserContext(), hc.cache),
	}
	if dbStatus != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func probe(parent context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(parent, healthTimeout)
	defer cancel()
	if err := p(ctx); err != nil {
		return "down"
	}
	return "ok"
}
