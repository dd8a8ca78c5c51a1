package handlers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comandocentral/edge-svc/internal/auth"
	"github.com/comandocentral/edge-svc/internal/dispatch"
)

// DispatchHandler exposes the dispatch loop over HTTP: the scheduler tick
// entry point, the two stage endpoints it drives, the replay recovery tool
// and the persisted tick log.
type DispatchHandler struct {
	Ticker    *dispatch.Ticker
	Processor *dispatch.Processor
	Runner    *dispatch.Runner
	Replayer  *dispatch.Replayer
	Authz     *auth.Authorizer
	Store     *dispatch.Store
	Logger    *zap.Logger
}

// NewDispatchHandler creates the handler with its dependencies.
func NewDispatchHandler(
	ticker *dispatch.Ticker,
	processor *dispatch.Processor,
	runner *dispatch.Runner,
	replayer *dispatch.Replayer,
	authz *auth.Authorizer,
	store *dispatch.Store,
	logger *zap.Logger,
) *DispatchHandler {
	return &DispatchHandler{
		Ticker:    ticker,
		Processor: processor,
		Runner:    runner,
		Replayer:  replayer,
		Authz:     authz,
		Store:     store,
		Logger:    logger,
	}
}

type stageRequest struct {
	Limit int `json:"limit"`
}

// SchedulerTick handles POST /scheduler-tick. The body is optional; absent
// knobs fall back to defaults inside the orchestrator.
func (h *DispatchHandler) SchedulerTick(c *fiber.Ctx) error {
	var opts dispatch.TickOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid tick request body",
			})
		}
	}

	summary := h.Ticker.Run(c.Context(), opts)
	return c.JSON(summary)
}

// ProcessEvents handles POST /process-events.
func (h *DispatchHandler) ProcessEvents(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.Processor.ProcessEvents(c.Context(), limit)
	if err != nil {
		h.Logger.Error("process-events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to process events",
		})
	}

	return c.JSON(res)
}

// RunNotifications handles POST /run-notifications.
func (h *DispatchHandler) RunNotifications(c *fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.Runner.RunNotifications(c.Context(), limit)
	if err != nil {
		h.Logger.Error("run-notifications failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to run notifications",
		})
	}

	return c.JSON(res)
}

type replayRequest struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Days     int       `json:"days"`
}

// ReplayEvents handles POST /replay-events. Admin-only: the bearer token must
// carry an owner or admin membership for the tenant. This is an internal
// tool, so real error messages may surface in the response.
func (h *DispatchHandler) ReplayEvents(c *fiber.Ctx) error {
	token, ok := auth.TokenFromHeader(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "missing bearer token",
		})
	}

	var req replayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid replay request body",
		})
	}
	if req.TenantID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "tenant_id is required",
		})
	}

	allowed, err := h.Authz.CanReplay(c.Context(), token, req.TenantID)
	if err != nil {
		h.Logger.Error("replay authorization failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if !allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "owner or admin role required",
		})
	}

	stats, err := h.Replayer.Replay(c.Context(), req.TenantID, req.Days)
	if err != nil {
		h.Logger.Error("replay failed",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	message := fmt.Sprintf("Replayed %d of %d events (%d already delivered, %d errors)",
		stats.EventsReset, stats.EventsFound, stats.AlreadyProcessed, stats.Errors)

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
		"message": message,
	})
}

// ListTicks handles GET /ticks: the most recent persisted tick summaries.
func (h *DispatchHandler) ListTicks(c *fiber.Ctx) error {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	ticks, err := h.Store.RecentTicks(c.Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list ticks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch tick log",
		})
	}

	return c.JSON(fiber.Map{"ticks": ticks})
}

func parseLimit(c *fiber.Ctx) (int, error) {
	req := stageRequest{Limit: 50}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return 0, fmt.Errorf("invalid stage request body")
		}
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return req.Limit, nil
}
