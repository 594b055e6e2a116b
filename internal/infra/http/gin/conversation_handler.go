package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"helpdesk/internal/app/dto"
	replysvc "helpdesk/internal/app/services/reply"
	domainconv "helpdesk/internal/domain/conversation"
	domainpage "helpdesk/internal/domain/page"
)

type ConversationHTTP interface {
	List(c *gin.Context)
	Messages(c *gin.Context)
	Reply(c *gin.Context)
}

// ConversationHandler serves the dashboard: conversation list with previews,
// message history and agent replies.
type ConversationHandler struct {
	Conversations domainconv.Repository
	MessageStore  domainconv.MessageRepository
	Pages         domainpage.Registry
	Replies       *replysvc.Service
	Logger        *slog.Logger
}

// List returns the caller's conversations, newest activity first.
func (h ConversationHandler) List(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	regs, err := h.Pages.ByOwner(c.Request.Context(), p.ID)
	if err != nil {
		h.respondInternal(c, "list pages", err)
		return
	}
	pageIDs := make([]string, 0, len(regs))
	for _, reg := range regs {
		pageIDs = append(pageIDs, reg.PageID)
	}
	collection := dto.ConversationList{Conversations: []dto.Conversation{}}
	if len(pageIDs) == 0 {
		c.JSON(http.StatusOK, collection)
		return
	}
	conversations, err := h.Conversations.ListByPages(c.Request.Context(), pageIDs)
	if err != nil {
		h.respondInternal(c, "list conversations", err)
		return
	}
	for _, conv := range conversations {
		item := newConversationDTO(conv)
		if latest, err := h.MessageStore.LatestByConversation(c.Request.Context(), conv.ID); err == nil && latest != nil {
			item.LastMessage = latest.Text
			item.LastMessageFrom = string(latest.Direction)
		}
		collection.Conversations = append(collection.Conversations, item)
	}
	c.JSON(http.StatusOK, collection)
}

// Messages returns a conversation's history, ascending by time.
func (h ConversationHandler) Messages(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conv, ok := h.authorizedConversation(c, p)
	if !ok {
		return
	}
	messages, err := h.MessageStore.ListByConversation(c.Request.Context(), conv.ID)
	if err != nil {
		h.respondInternal(c, "list messages", err)
		return
	}
	response := dto.MessageList{
		Conversation: newConversationDTO(conv),
		Messages:     make([]dto.Message, 0, len(messages)),
	}
	for _, msg := range messages {
		response.Messages = append(response.Messages, dto.Message{
			ID:             msg.ID,
			ConversationID: string(msg.ConversationID),
			SenderID:       msg.SenderID,
			Text:           msg.Text,
			Direction:      string(msg.Direction),
			CreatedAt:      msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h ConversationHandler) Reply(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Replies.Reply(c.Request.Context(), domainconv.ID(conversationID), p.ID, req.Message)
	if err != nil {
		h.respondReplyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Message{
		ID:             msg.ID,
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		Direction:      string(msg.Direction),
		CreatedAt:      msg.CreatedAt,
	})
}

// authorizedConversation loads the conversation and enforces that the caller
// owns the page behind it.
func (h ConversationHandler) authorizedConversation(c *gin.Context, p principal) (*domainconv.Conversation, bool) {
	conversationID := c.Param("id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return nil, false
	}
	conv, err := h.Conversations.ByID(c.Request.Context(), domainconv.ID(conversationID))
	if err != nil {
		if errors.Is(err, domainconv.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return nil, false
		}
		h.respondInternal(c, "load conversation", err)
		return nil, false
	}
	reg, err := h.Pages.Lookup(c.Request.Context(), conv.PageID)
	if err != nil || reg.OwnerUserID != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return nil, false
	}
	return conv, true
}

func (h ConversationHandler) respondReplyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, replysvc.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
	case errors.Is(err, replysvc.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, replysvc.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, replysvc.ErrChannelUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "channel unavailable, retry later"})
	default:
		h.respondInternal(c, "send reply", err)
	}
}

func (h ConversationHandler) respondInternal(c *gin.Context, action string, err error) {
	if h.Logger != nil {
		h.Logger.Error("conversation request failed", "action", action, "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func newConversationDTO(conv *domainconv.Conversation) dto.Conversation {
	return dto.Conversation{
		ID:            string(conv.ID),
		PageID:        conv.PageID,
		CustomerID:    conv.CustomerID,
		CustomerName:  conv.CustomerName,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	}
}

var _ ConversationHTTP = (*ConversationHandler)(nil)
