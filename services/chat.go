// Package services holds the message lifecycle logic, between the HTTP
// and socket edges and the persistence layer.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/relayhq/chat-api/domain"
	"github.com/relayhq/chat-api/metrics"
)

// MessageStore is the persistence surface the chat service needs.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	SaveMessage(ctx context.Context, msg *domain.Message) error
	PaginateMessages(ctx context.Context, orgID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
}

// Broadcaster pushes an event to every socket in a conversation.
// Delivery is best-effort; failures never affect the HTTP response.
type Broadcaster interface {
	Broadcast(conversationID string, event any)
}

// MessagePage is one page of conversation history, newest first.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	HasMore  bool             `json:"has_more"`
}

type ChatService struct {
	store MessageStore
	hub   Broadcaster
}

func NewChatService(store MessageStore, hub Broadcaster) *ChatService {
	return &ChatService{store: store, hub: hub}
}

// CreateMessage sanitizes and persists a new message, then fans it out
// to the conversation's sockets.
func (s *ChatService) CreateMessage(ctx context.Context, auth *domain.AuthContext, conversationID, content string) (*domain.Message, error) {
	content = sanitizeContent(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		OrgID:          auth.OrgID,
		ConversationID: conversationID,
		SenderID:       auth.UserID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	metrics.MessagesCreatedTotal.WithLabelValues(conversationID).Inc()
	slog.Info("message created",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"org_id", auth.OrgID,
		"sender_id", auth.UserID)

	s.hub.Broadcast(conversationID, map[string]any{
		"type":    "new_message",
		"message": msg,
	})
	return msg, nil
}

// ListMessages returns one page of the conversation's non-deleted
// messages for the caller's org, newest first.
func (s *ChatService) ListMessages(ctx context.Context, auth *domain.AuthContext, conversationID string, page, pageSize int) (*MessagePage, error) {
	messages, total, err := s.store.PaginateMessages(ctx, auth.OrgID, conversationID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &MessagePage{
		Messages: messages,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  int64(page)*int64(pageSize) < total,
	}, nil
}

// UpdateMessage replaces a message's content. Only the sender may edit
// their own message; there is no admin override for edits.
func (s *ChatService) UpdateMessage(ctx context.Context, auth *domain.AuthContext, conversationID, messageID, content string) (*domain.Message, error) {
	msg, err := s.authorizeMutation(ctx, auth, false, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	content = sanitizeContent(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	msg.Content = content
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	metrics.MessagesUpdatedTotal.WithLabelValues(conversationID).Inc()
	slog.Info("message updated",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"org_id", auth.OrgID,
		"editor_id", auth.UserID)

	s.hub.Broadcast(conversationID, map[string]any{
		"type":    "message_updated",
		"message": msg,
	})
	return msg, nil
}

// DeleteMessage soft-deletes a message. The document stays in place
// with is_deleted set, so it vanishes from listings but remains for
// audit.
func (s *ChatService) DeleteMessage(ctx context.Context, auth *domain.AuthContext, isAdmin bool, conversationID, messageID string) error {
	msg, err := s.authorizeMutation(ctx, auth, isAdmin, conversationID, messageID)
	if err != nil {
		return err
	}

	msg.IsDeleted = true
	msg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return err
	}

	metrics.MessagesDeletedTotal.WithLabelValues(conversationID).Inc()
	slog.Info("message deleted",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"org_id", auth.OrgID,
		"deleter_id", auth.UserID)

	s.hub.Broadcast(conversationID, map[string]any{
		"type":       "message_deleted",
		"message_id": msg.ID,
	})
	return nil
}

// authorizeMutation runs the existence and ownership ladder for edits
// and deletes. A message in another conversation reads as not found; a
// message in another org is a cross-tenant probe and reads as
// forbidden, with a security log line.
func (s *ChatService) authorizeMutation(ctx context.Context, auth *domain.AuthContext, isAdmin bool, conversationID, messageID string) (*domain.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, domain.ErrNotFound
	}
	if msg.ConversationID != conversationID {
		return nil, domain.ErrNotFound
	}
	if msg.OrgID != auth.OrgID {
		slog.Error("cross-tenant message access blocked",
			"message_id", messageID,
			"message_org_id", msg.OrgID,
			"caller_org_id", auth.OrgID,
			"caller_id", auth.UserID)
		return nil, domain.ErrForbidden
	}
	if msg.SenderID != auth.UserID && !isAdmin {
		return nil, fmt.Errorf("%w: not the message sender", domain.ErrForbidden)
	}
	return msg, nil
}

func validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: content is empty after sanitization", domain.ErrValidation)
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", domain.ErrValidation, domain.MaxContentLength)
	}
	return nil
}
