package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopfront/backend/internal/application/support"
	"go.uber.org/zap"
)

// SSEMessage is one Server-Sent Event
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// SupportHandler handles support conversations and their live stream
type SupportHandler struct {
	BaseHandler
	chatService *support.ChatService
	heartbeat   time.Duration
	logger      *zap.Logger
}

// NewSupportHandler creates a new SupportHandler. A non-positive heartbeat
// defaults to 25 seconds, under the usual 30s proxy idle timeout.
func NewSupportHandler(chatService *support.ChatService, heartbeat time.Duration, logger *zap.Logger) *SupportHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupportHandler{
		chatService: chatService,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

func (h *SupportHandler) actor(c *gin.Context) (support.Actor, bool) {
	userID, ok := h.CurrentUser(c)
	if !ok {
		return support.Actor{}, false
	}
	return support.Actor{UserID: userID, IsStaff: isAdmin(c)}, true
}

// StartConversation handles POST /support/conversations. A customer with an
// open conversation gets that one back (200) instead of a new one (201).
func (h *SupportHandler) StartConversation(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req support.StartConversationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	conv, created, err := h.chatService.StartConversation(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if created {
		h.Created(c, conv)
		return
	}
	h.Success(c, conv)
}

// ListConversations handles GET /support/conversations. Staff see every
// conversation, customers their own.
func (h *SupportHandler) ListConversations(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var filter support.ConversationListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	convs, total, err := h.chatService.ListConversations(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, convs, total, page, pageSize)
}

// ListMessages handles GET /support/conversations/:id/messages
func (h *SupportHandler) ListMessages(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var filter support.MessageListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	msgs, total, err := h.chatService.ListMessages(c.Request.Context(), actor, id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOrDefault(filter.Page, filter.PageSize)
	h.SuccessWithMeta(c, msgs, total, page, pageSize)
}

// SendMessage handles POST /support/conversations/:id/messages
func (h *SupportHandler) SendMessage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req support.SendMessageRequest
	if !h.BindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), actor, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, msg)
}

// MarkRead handles POST /support/conversations/:id/read
func (h *SupportHandler) MarkRead(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	conv, err := h.chatService.MarkRead(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conv)
}

// CloseConversation handles POST /support/conversations/:id/close
func (h *SupportHandler) CloseConversation(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	conv, err := h.chatService.CloseConversation(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conv)
}

// Stream handles GET /support/conversations/:id/stream. New messages arrive
// as "message" events; a heartbeat comment keeps idle connections open.
func (h *SupportHandler) Stream(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}

	sub, err := h.chatService.Subscribe(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer h.chatService.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.logger.Debug("support stream opened",
		zap.String("subscriber_id", sub.ID),
		zap.String("conversation_id", id.String()))

	h.sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"conversation_id":"%s","timestamp":%d}`, id, time.Now().Unix()),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(c.Writer, ": heartbeat %d\n\n", time.Now().Unix())
			c.Writer.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(support.ToMessageResponse(&msg))
			if err != nil {
				h.logger.Error("failed to marshal chat message", zap.Error(err))
				continue
			}
			h.sendEvent(c.Writer, SSEMessage{Event: "message", Data: string(data), ID: msg.ID.String()})
			c.Writer.Flush()
		}
	}
}

// sendEvent writes an SSE event to the response writer
func (h *SupportHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
