// Package admin exposes the operator API for the watched subscription.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailpulse/internal/logger"
	"mailpulse/internal/subscription"
	"mailpulse/pkg/clock"
	"mailpulse/pkg/errors"
)

// Lifecycle is the subset of the subscription manager the API drives.
type Lifecycle interface {
	Snapshot() (subscription.Record, bool)
	EnsureActive(ctx context.Context) error
	Teardown(ctx context.Context) error
}

type Handler struct {
	lifecycle Lifecycle
	clock     clock.Clock
	logger    logger.Logger
}

func NewHandler(lifecycle Lifecycle, clk clock.Clock, log logger.Logger) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		clock:     clk,
		logger:    log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		sub := v1.Group("/subscription")
		{
			sub.GET("", h.GetSubscription)
			sub.POST("/ensure", h.EnsureSubscription)
			sub.DELETE("", h.DeleteSubscription)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) respondSnapshot(c *gin.Context, status int) {
	rec, ok := h.lifecycle.Snapshot()
	if !ok {
		h.handleError(c, errors.ErrNotFound.WithDetail("resource", "subscription"))
		return
	}
	c.JSON(status, ToResponse(rec, h.clock.Now()))
}

// GetSubscription godoc
// @Summary      Get the current subscription
// @Description  Returns the persisted subscription record without its client state
// @Tags         subscription
// @Produce      json
// @Success      200  {object}  SubscriptionResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /subscription [get]
func (h *Handler) GetSubscription(c *gin.Context) {
	h.respondSnapshot(c, http.StatusOK)
}

// EnsureSubscription godoc
// @Summary      Run a lifecycle check now
// @Description  Creates, renews or recreates the subscription as needed, then returns the record
// @Tags         subscription
// @Produce      json
// @Success      200  {object}  SubscriptionResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /subscription/ensure [post]
func (h *Handler) EnsureSubscription(c *gin.Context) {
	if err := h.lifecycle.EnsureActive(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	h.respondSnapshot(c, http.StatusOK)
}

// DeleteSubscription godoc
// @Summary      Tear down the subscription
// @Description  Deletes the provider subscription and marks the record Deleted. Renewal stops until the next ensure.
// @Tags         subscription
// @Produce      json
// @Success      200  {object}  SubscriptionResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /subscription [delete]
func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.lifecycle.Teardown(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	h.respondSnapshot(c, http.StatusOK)
}
