package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gudangguard/sentinel/internal/alerting"
	"github.com/gudangguard/sentinel/internal/correlator"
	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// AlertStates is the engine's read-only state view.
type AlertStates interface {
	Snapshot() []alerting.DeviceAlertState
	ActiveCount() int
}

// RepeatRunner runs a repeat-detection pass on demand.
type RepeatRunner interface {
	RunRepeatDetectionPass(ctx context.Context) (correlator.PassResult, error)
}

// AlertLogReader lists the alert log.
type AlertLogReader interface {
	ListAlertLogs(ctx context.Context, filter repository.AlertLogFilter) ([]entities.AlertLog, int64, error)
}

// DetectionAcknowledger records operator acknowledgements.
type DetectionAcknowledger interface {
	AcknowledgeDetection(ctx context.Context, id uint, when time.Time) error
}

// BrokerStatus reports broker connectivity for the health check.
type BrokerStatus interface {
	IsConnected() bool
}

// Controller holds the handlers' collaborators. Nil collaborators disable
// their routes' behavior with 503.
type Controller struct {
	States     AlertStates
	Profiles   *alerting.Profiles
	Repeat     RepeatRunner
	AlertLog   AlertLogReader
	Detections DetectionAcknowledger
	Broker     BrokerStatus
	Log        logger.Logger
}

// Register mounts the routes on e.
func (c *Controller) Register(e *echo.Echo) {
	e.GET("/healthz", c.Health)

	v1 := e.Group("/api/v1")
	v1.GET("/alerts/states", c.ListAlertStates)
	v1.GET("/alerts/schema", c.GetAlertSchema)
	v1.GET("/alerts/log", c.ListAlertLog)
	v1.POST("/correlator/run", c.RunRepeatDetection)
	v1.POST("/detections/:id/ack", c.AcknowledgeDetection)
}

// HandleError logs err and writes a JSON error with message.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if c.Log != nil {
		c.Log.Error(message,
			logger.String("path", ctx.Path()),
			logger.Int("status", code),
			logger.Error(err))
	}
	return ctx.JSON(code, map[string]string{"error": message})
}

func unavailable(ctx echo.Context, what string) error {
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": what + " is not enabled"})
}

// Health reports 200 when the broker is connected (or not configured).
func (c *Controller) Health(ctx echo.Context) error {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if c.Broker != nil {
		connected := c.Broker.IsConnected()
		status["mqtt_connected"] = connected
		if !connected {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if c.States != nil {
		status["active_alerts"] = c.States.ActiveCount()
	}
	return ctx.JSON(code, status)
}

// ListAlertStates returns every device's last transition decision.
func (c *Controller) ListAlertStates(ctx echo.Context) error {
	if c.States == nil {
		return unavailable(ctx, "alerting")
	}
	states := c.States.Snapshot()
	if ctx.QueryParam("active") == "true" {
		active := states[:0]
		for _, s := range states {
			if s.IsAlertActive {
				active = append(active, s)
			}
		}
		states = active
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"states": states,
		"count":  len(states),
	})
}

// GetAlertSchema returns the monitored system types and incident kinds.
func (c *Controller) GetAlertSchema(ctx echo.Context) error {
	if c.Profiles == nil {
		return unavailable(ctx, "alerting")
	}
	return ctx.JSON(http.StatusOK, alerting.GetSchema(c.Profiles))
}

// ListAlertLog returns paginated alert log entries.
func (c *Controller) ListAlertLog(ctx echo.Context) error {
	if c.AlertLog == nil {
		return unavailable(ctx, "alert log")
	}

	filter := repository.AlertLogFilter{
		DeviceID: ctx.QueryParam("device_id"),
		Kind:     ctx.QueryParam("kind"),
		Limit:    defaultLogLimit,
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if v, err := strconv.Atoi(limitParam); err == nil && v > 0 {
			filter.Limit = min(v, maxLogLimit)
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if v, err := strconv.Atoi(offsetParam); err == nil && v >= 0 {
			filter.Offset = v
		}
	}

	items, total, err := c.AlertLog.ListAlertLogs(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert log", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"entries": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// RunRepeatDetection runs one correlator pass and returns its summary.
func (c *Controller) RunRepeatDetection(ctx echo.Context) error {
	if c.Repeat == nil {
		return unavailable(ctx, "correlator")
	}
	result, err := c.Repeat.RunRepeatDetectionPass(ctx.Request().Context())
	if errors.Is(err, correlator.ErrPassInProgress) {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "A repeat detection pass is already running"})
	}
	if err != nil {
		return c.HandleError(ctx, err, "Repeat detection pass failed", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, result)
}

// AcknowledgeDetection removes a detection from the correlator backlog.
func (c *Controller) AcknowledgeDetection(ctx echo.Context) error {
	if c.Detections == nil {
		return unavailable(ctx, "detections")
	}
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid detection ID"})
	}

	if err := c.Detections.AcknowledgeDetection(ctx.Request().Context(), id, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrDetectionNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Detection not found"})
		}
		return c.HandleError(ctx, err, "Failed to acknowledge detection", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
