package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/audit"
	"github.com/realmate/conversations/internal/auth"
	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/notify"
	"github.com/realmate/conversations/internal/store"
	"github.com/realmate/conversations/internal/webhook"
)

const maxWebhookBody = 1 << 20

// Processor turns a raw webhook body into an outcome.
type Processor interface {
	ProcessJSON(ctx context.Context, body []byte) webhook.Outcome
}

// LogLister reads back the audit trail.
type LogLister interface {
	List(ctx context.Context, filter audit.Filter) ([]models.WebhookLog, error)
}

type Dependencies struct {
	Processor Processor
	Reader    store.Reader
	Logs      LogLister
	Hub       *notify.Hub
	// Auth guards the admin routes; nil leaves them open.
	Auth   *auth.Service
	Logger *zap.SugaredLogger
}

type Handler struct {
	processor Processor
	reader    store.Reader
	logs      LogLister
	hub       *notify.Hub
	auth      *auth.Service
	logger    *zap.SugaredLogger
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		processor: deps.Processor,
		reader:    deps.Reader,
		logs:      deps.Logs,
		hub:       deps.Hub,
		auth:      deps.Auth,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	withSlash(router.POST, "/webhook", h.handleWebhook)
	withSlash(router.GET, "/conversations", h.handleListConversations)
	withSlash(router.GET, "/conversations/:id", h.handleGetConversation)

	adminGroup := router.Group("/admin", auth.RequireAdmin(h.auth))
	withSlash(adminGroup.GET, "/webhook-logs", h.handleListWebhookLogs)
	adminGroup.GET("/events/ws", h.handleEventStream)
}

// withSlash registers path with and without the trailing slash so clients
// are not redirected.
func withSlash(register func(string, ...gin.HandlerFunc) gin.IRoutes, path string, handler gin.HandlerFunc) {
	register(path, handler)
	register(path+"/", handler)
}

func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warnw("failed to read webhook body", "error", err)
	}

	outcome := h.processor.ProcessJSON(c.Request.Context(), body)
	c.JSON(outcome.StatusCode, outcome)
}

func (h *Handler) handleListConversations(c *gin.Context) {
	opts := store.ListOptions{
		Page:     parsePositiveInt(c.Query("page"), 1),
		PageSize: parsePositiveInt(c.Query("page_size"), 0),
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.ConversationStatus(strings.ToUpper(raw))
		if status != models.ConversationOpen && status != models.ConversationClosed {
			writeError(c, http.StatusBadRequest, "invalid status filter", errors.New("status must be OPEN or CLOSED"))
			return
		}
		opts.Status = status
	}

	conversations, total, err := h.reader.ListConversations(c.Request.Context(), opts)
	if err != nil {
		h.logger.Errorw("list conversations failed", "error", err)
		writeError(c, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}

	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, conversations)
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid conversation id", err)
		return
	}

	conv, err := h.reader.GetConversation(c.Request.Context(), id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "conversation not found", err)
			return
		}
		h.logger.Errorw("get conversation failed", "conversation_id", id.String(), "error", err)
		writeError(c, http.StatusInternalServerError, "failed to load conversation", err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *Handler) handleListWebhookLogs(c *gin.Context) {
	filter := audit.Filter{
		Event:          c.Query("event"),
		Status:         models.LogStatus(c.Query("status")),
		ConversationID: c.Query("conversation_id"),
		Search:         c.Query("search"),
		Limit:          parsePositiveInt(c.Query("limit"), 0),
	}

	entries, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorw("list webhook logs failed", "error", err)
		writeError(c, http.StatusInternalServerError, "failed to list webhook logs", err)
		return
	}
	if entries == nil {
		entries = []models.WebhookLog{}
	}

	c.JSON(http.StatusOK, entries)
}

func parsePositiveInt(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
