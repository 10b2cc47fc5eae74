// Package handle exposes the mock provider over HTTP.
package handle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrkagelui/metamock/apperr"
	"github.com/mrkagelui/metamock/handle/inbound"
	"github.com/mrkagelui/metamock/handle/message"
	"github.com/mrkagelui/metamock/sim"
	"github.com/mrkagelui/metamock/store"
)

type sender interface {
	Send(ctx context.Context, req message.Request) (message.Receipt, error)
}

type simulator interface {
	Simulate(ctx context.Context, req inbound.Request) (inbound.Result, error)
}

type messages interface {
	Get(id string) (store.Record, error)
	Count() int
}

type settings interface {
	Get() sim.Settings
	Update(p sim.Patch) sim.Settings
}

// Handler contains all it needs to serve provider requests.
type Handler struct {
	lg      *slog.Logger
	msg     sender
	in      simulator
	st      messages
	cfg     settings
	service string
	now     func() time.Time
}

// NewHandler returns a new *Handler.
func NewHandler(lg *slog.Logger, msg sender, in simulator, st messages, cfg settings, service string) *Handler {
	return &Handler{
		lg:      lg,
		msg:     msg,
		in:      in,
		st:      st,
		cfg:     cfg,
		service: service,
		now:     time.Now,
	}
}

// Router returns an engine with every provider route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(h.lg), allowCORS())
	h.Register(r)
	return r
}

// Register adds the provider routes to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/messages", h.sendMessage)
	r.GET("/messages/:id", h.getMessage)
	r.POST("/simulate/inbound", h.simulateInbound)
	r.GET("/config", h.getConfig)
	r.POST("/config", h.updateConfig)
	r.GET("/health", h.health)
	r.GET("/stats", h.stats)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req message.Request
	if !bindJSON(c, &req) {
		return
	}

	rcpt, err := h.msg.Send(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"providerMessageId": rcpt.ProviderMessageID,
		"timestamp":         rcpt.Timestamp,
	})
}

func (h *Handler) getMessage(c *gin.Context) {
	rec, err := h.st.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": rec,
	})
}

func (h *Handler) simulateInbound(c *gin.Context) {
	var req inbound.Request
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.in.Simulate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"eventId":    res.EventID,
		"timestamp":  res.Timestamp,
		"simulation": res.Simulation,
	})
}

func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  h.cfg.Get(),
	})
}

func (h *Handler) updateConfig(c *gin.Context) {
	var p sim.Patch
	if !bindJSON(c, &p) {
		return
	}

	s := h.cfg.Update(p)
	h.lg.Info("config updated",
		slog.Float64("failure_rate", s.FailureRate),
		slog.Float64("duplicate_rate", s.DuplicateRate),
		slog.Float64("out_of_order_rate", s.OutOfOrderRate),
		slog.Int("delay_max_ms", s.DelayMaxMs),
	)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"config":  s,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   h.service,
		"timestamp": h.now().UTC().Truncate(time.Millisecond),
		"config":    h.cfg.Get(),
	})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"totalMessages": h.st.Count(),
		},
	})
}

// fail writes err using the status and body callers of the real provider would see.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)

	var pe *apperr.ProviderError
	switch {
	case errors.As(err, &pe):
		c.JSON(status, gin.H{
			"success":   false,
			"error":     pe.Message,
			"retryable": pe.Retryable(),
		})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(status, gin.H{
			"success": false,
			"error":   "Message not found",
		})
	case errors.Is(err, apperr.ErrInvalidRequest):
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	default:
		h.lg.Error("handling request",
			slog.String("path", c.FullPath()),
			slog.String("kind", apperr.Kind(err)),
			slog.String("err", err.Error()),
		)
		c.JSON(status, gin.H{
			"success": false,
			"error":   "Internal Server Error",
		})
	}
}

// bindJSON decodes the request body into v. An empty body leaves v untouched so
// field validation can report what is missing.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid JSON body",
	})
	return false
}
