package support

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/support"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxSaveAttempts bounds reload-and-retry on version conflicts
const maxSaveAttempts = 3

// Broadcaster delivers a stored message to live subscribers, on this
// instance and, when configured, on every other instance.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg support.Message) error
}

// ChatService handles support conversations
type ChatService struct {
	repo        support.Repository
	hub         *Hub
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewChatService creates a new ChatService. broadcaster may be the hub
// itself when running a single instance.
func NewChatService(repo support.Repository, hub *Hub, broadcaster Broadcaster, logger *zap.Logger) *ChatService {
	if broadcaster == nil {
		broadcaster = hub
	}
	return &ChatService{
		repo:        repo,
		hub:         hub,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// StartConversation returns the customer's open conversation, or opens a
// new one. created reports which happened. An initial message is posted
// either way.
func (s *ChatService) StartConversation(ctx context.Context, actor Actor, req StartConversationRequest) (*ConversationResponse, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "support", "start_conversation")
	defer span.End()

	if actor.IsStaff {
		return nil, false, shared.NewDomainError("CUSTOMER_ONLY", "Only customers can start conversations")
	}

	existing, err := s.repo.FindOpenByCustomer(ctx, actor.UserID)
	switch {
	case err == nil:
		if req.Message != "" {
			if _, err := s.post(ctx, actor, existing.ID, req.Message); err != nil {
				telemetry.RecordError(span, err)
				return nil, false, err
			}
			if existing, err = s.repo.FindByID(ctx, existing.ID); err != nil {
				return nil, false, err
			}
		}
		resp := ToConversationResponse(existing)
		return &resp, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		telemetry.RecordError(span, err)
		return nil, false, err
	}

	conv, err := support.NewConversation(actor.UserID, req.Subject)
	if err != nil {
		return nil, false, err
	}

	var msg *support.Message
	if req.Message != "" {
		if msg, err = conv.Post(actor.UserID, support.SenderCustomer, req.Message); err != nil {
			return nil, false, err
		}
		err = s.repo.SaveWithMessage(ctx, conv, msg)
	} else {
		err = s.repo.Save(ctx, conv)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to open conversation", zap.Error(err))
		return nil, false, err
	}
	if msg != nil {
		s.broadcast(ctx, *msg)
	}

	telemetry.SetOK(span)
	s.logger.Info("Support conversation opened",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("customer_id", actor.UserID.String()))
	resp := ToConversationResponse(conv)
	return &resp, true, nil
}

// SendMessage posts a message to a conversation
func (s *ChatService) SendMessage(ctx context.Context, actor Actor, conversationID uuid.UUID, req SendMessageRequest) (*MessageResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "support", "send_message")
	defer span.End()
	telemetry.SetAttributes(span, "conversation_id", conversationID.String(), "staff", actor.IsStaff)

	msg, err := s.post(ctx, actor, conversationID, req.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	resp := ToMessageResponse(msg)
	return &resp, nil
}

func (s *ChatService) post(ctx context.Context, actor Actor, conversationID uuid.UUID, body string) (*support.Message, error) {
	var msg *support.Message
	err := s.mutate(ctx, actor, conversationID, func(c *support.Conversation) (bool, error) {
		var err error
		msg, err = c.Post(actor.UserID, actor.role(), body)
		return err == nil, err
	}, func(c *support.Conversation) error {
		return s.repo.SaveWithMessage(ctx, c, msg)
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, *msg)
	return msg, nil
}

// ListMessages returns a page of messages, oldest first
func (s *ChatService) ListMessages(ctx context.Context, actor Actor, conversationID uuid.UUID, filter MessageListFilter) ([]MessageResponse, int64, error) {
	if _, err := s.load(ctx, actor, conversationID); err != nil {
		return nil, 0, err
	}

	repoFilter := support.MessageFilter{
		Filter: shared.Filter{Page: filter.Page, PageSize: filter.PageSize},
		After:  filter.After,
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.PageSize <= 0 {
		repoFilter.PageSize = 50
	}

	messages, total, err := s.repo.ListMessages(ctx, conversationID, repoFilter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]MessageResponse, len(messages))
	for i := range messages {
		out[i] = ToMessageResponse(&messages[i])
	}
	return out, total, nil
}

// MarkRead clears the caller's unread counter
func (s *ChatService) MarkRead(ctx context.Context, actor Actor, conversationID uuid.UUID) (*ConversationResponse, error) {
	var conv *support.Conversation
	err := s.mutate(ctx, actor, conversationID, func(c *support.Conversation) (bool, error) {
		before := c.GetVersion()
		c.MarkRead(actor.role())
		conv = c
		return c.GetVersion() != before, nil
	}, func(c *support.Conversation) error {
		return s.repo.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	resp := ToConversationResponse(conv)
	return &resp, nil
}

// CloseConversation closes a conversation. Either side may close it.
func (s *ChatService) CloseConversation(ctx context.Context, actor Actor, conversationID uuid.UUID) (*ConversationResponse, error) {
	var conv *support.Conversation
	err := s.mutate(ctx, actor, conversationID, func(c *support.Conversation) (bool, error) {
		conv = c
		return true, c.Close()
	}, func(c *support.Conversation) error {
		return s.repo.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Support conversation closed",
		zap.String("conversation_id", conversationID.String()),
		zap.String("closed_by", actor.UserID.String()))
	resp := ToConversationResponse(conv)
	return &resp, nil
}

// ListConversations lists the caller's conversations, or all of them for staff
func (s *ChatService) ListConversations(ctx context.Context, actor Actor, filter ConversationListFilter) ([]ConversationResponse, int64, error) {
	repoFilter := support.ConversationFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "updated_at",
			OrderDir: "desc",
		},
		Status: support.ConversationStatus(filter.Status),
	}
	if repoFilter.Page <= 0 {
		repoFilter.Page = 1
	}
	if repoFilter.PageSize <= 0 {
		repoFilter.PageSize = 20
	}
	if !actor.IsStaff {
		customerID := actor.UserID
		repoFilter.CustomerID = &customerID
	}

	conversations, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ConversationResponse, len(conversations))
	for i := range conversations {
		out[i] = ToConversationResponse(&conversations[i])
	}
	return out, total, nil
}

// Subscribe attaches the caller to a conversation's live message stream.
// The caller must Unsubscribe when done.
func (s *ChatService) Subscribe(ctx context.Context, actor Actor, conversationID uuid.UUID) (*Subscriber, error) {
	if _, err := s.load(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(conversationID, actor.UserID)
}

// Unsubscribe detaches a stream subscriber
func (s *ChatService) Unsubscribe(sub *Subscriber) {
	s.hub.Unsubscribe(sub)
}

// load returns ErrNotFound for conversations the actor may not see
func (s *ChatService) load(ctx context.Context, actor Actor, id uuid.UUID) (*support.Conversation, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanAccess(actor.UserID, actor.IsStaff) {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

// mutate applies change and persists with save, reloading on version
// conflicts. change reports whether anything needs saving.
func (s *ChatService) mutate(
	ctx context.Context,
	actor Actor,
	id uuid.UUID,
	change func(c *support.Conversation) (bool, error),
	save func(c *support.Conversation) error,
) error {
	for attempt := 1; ; attempt++ {
		c, err := s.load(ctx, actor, id)
		if err != nil {
			return err
		}
		dirty, err := change(c)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}
		err = save(c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxSaveAttempts {
			return err
		}
		s.logger.Debug("Conversation version conflict, retrying",
			zap.String("conversation_id", id.String()),
			zap.Int("attempt", attempt))
	}
}

func (s *ChatService) broadcast(ctx context.Context, msg support.Message) {
	if err := s.broadcaster.Broadcast(ctx, msg); err != nil {
		// the message is stored; live delivery is best-effort
		s.logger.Warn("Failed to broadcast chat message",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
}
