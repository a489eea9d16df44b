package ingestion

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	"mailpulse/pkg/clock"
	"mailpulse/pkg/metrics"
)

const maxDeliveryBytes = 1 << 20

// Handler serves the provider-facing webhook.
type Handler struct {
	pipeline *Pipeline
	clock    clock.Clock
	logger   logger.Logger
}

func NewHandler(pipeline *Pipeline, log logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		clock:    pipeline.deps.Clock,
		logger:   log,
	}
}

// RegisterRoutes mounts the webhook for GET and POST at path. The provider
// sends its validation handshake with either method.
func (h *Handler) RegisterRoutes(router gin.IRouter, path string) {
	router.GET(path, h.Webhook)
	router.POST(path, h.Webhook)
}

// Webhook godoc
// @Summary      Change notification webhook
// @Description  Answers the validation handshake and accepts notification deliveries
// @Tags         webhook
// @Accept       json
// @Produce      json,plain
// @Param        validationToken  query     string  false  "Handshake token to echo"
// @Success      200  {string}  string  "the validation token"
// @Success      202  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Router       /webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	if token, ok := c.GetQuery(constants.ValidationTokenParam); ok && token != "" {
		h.logger.InfowCtx(c.Request.Context(), "Answering validation handshake", "method", c.Request.Method)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token))
		metrics.IncWebhookRequest("handshake", http.StatusOK)
		return
	}

	if c.Request.Method != http.MethodPost {
		c.Status(http.StatusMethodNotAllowed)
		metrics.IncWebhookRequest("unsupported", http.StatusMethodNotAllowed)
		return
	}

	receivedAt := h.clock.Now()
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDeliveryBytes))
	if err != nil {
		h.rejectDelivery(c, err)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.rejectDelivery(c, err)
		return
	}

	accepted := 0
	for i, raw := range envelope.Value {
		var n Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			h.logger.WarnwCtx(ctx, "Dropping undecodable notification", "index", i, "error", err)
			h.pipeline.count(OutcomeMalformed)
			continue
		}
		if err := n.Validate(); err != nil {
			h.logger.WarnwCtx(ctx, "Dropping invalid notification", "index", i, "error", err)
			h.pipeline.count(OutcomeMalformed)
			continue
		}

		n.ReceivedAt = receivedAt
		if h.pipeline.Accept(ctx, &n) == OutcomeAccepted {
			accepted++
		}
	}

	h.logger.DebugwCtx(ctx, "Delivery processed",
		"notifications", len(envelope.Value),
		"accepted", accepted,
	)
	metrics.IncWebhookRequest("delivery", http.StatusAccepted)
	c.JSON(http.StatusAccepted, gin.H{"status": "Notification received"})
}

func (h *Handler) rejectDelivery(c *gin.Context, err error) {
	h.logger.WarnwCtx(c.Request.Context(), "Rejecting malformed delivery", "error", err)
	metrics.IncWebhookRequest("delivery", http.StatusBadRequest)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
}
