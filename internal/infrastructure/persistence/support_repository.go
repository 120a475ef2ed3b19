package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/support"
	"gorm.io/gorm"
)

// GormSupportRepository implements support.Repository using GORM
type GormSupportRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormSupportRepository creates a new GormSupportRepository
func NewGormSupportRepository(db *gorm.DB) *GormSupportRepository {
	return &GormSupportRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormSupportRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// FindByID finds a conversation by ID
func (r *GormSupportRepository) FindByID(ctx context.Context, id uuid.UUID) (*support.Conversation, error) {
	var c support.Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.MarkPersisted()
	return &c, nil
}

// FindOpenByCustomer returns the customer's most recent open conversation
func (r *GormSupportRepository) FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) (*support.Conversation, error) {
	var c support.Conversation
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, support.ConversationOpen).
		Order("created_at DESC").
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.MarkPersisted()
	return &c, nil
}

// List returns a page of conversations, most recently active first by default
func (r *GormSupportRepository) List(ctx context.Context, filter support.ConversationFilter) ([]support.Conversation, int64, error) {
	query := r.db.WithContext(ctx).Model(&support.Conversation{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var conversations []support.Conversation
	query = applySort(query, filter.Filter, ConversationSortFields, "updated_at")
	if err := paginate(query, filter.Filter).Find(&conversations).Error; err != nil {
		return nil, 0, err
	}
	return conversations, total, nil
}

// Save creates or updates a conversation with an optimistic version check
func (r *GormSupportRepository) Save(ctx context.Context, c *support.Conversation) error {
	return r.write(ctx, c, nil)
}

// SaveWithMessage saves the conversation and appends msg in one transaction
func (r *GormSupportRepository) SaveWithMessage(ctx context.Context, c *support.Conversation, msg *support.Message) error {
	return r.write(ctx, c, msg)
}

func (r *GormSupportRepository) write(ctx context.Context, c *support.Conversation, msg *support.Message) error {
	events := c.GetDomainEvents()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.saveConversation(tx, c); err != nil {
			return err
		}
		if msg != nil {
			if err := tx.Create(msg).Error; err != nil {
				return err
			}
		}
		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.ClearDomainEvents()
	c.MarkPersisted()
	return nil
}

func (r *GormSupportRepository) saveConversation(tx *gorm.DB, c *support.Conversation) error {
	if c.LoadedVersion() == 0 {
		return tx.Create(c).Error
	}
	if c.Version == c.LoadedVersion() {
		c.IncrementVersion()
	}
	result := tx.Model(&support.Conversation{}).
		Where("id = ? AND version = ?", c.ID, c.LoadedVersion()).
		Updates(map[string]any{
			"subject":               c.Subject,
			"status":                c.Status,
			"last_message_at":       c.LastMessageAt,
			"unread_count_customer": c.UnreadCountCustomer,
			"unread_count_staff":    c.UnreadCountStaff,
			"closed_at":             c.ClosedAt,
			"updated_at":            c.UpdatedAt,
			"version":               c.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first
func (r *GormSupportRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, filter support.MessageFilter) ([]support.Message, int64, error) {
	query := r.db.WithContext(ctx).Model(&support.Message{}).Where("conversation_id = ?", conversationID)
	if filter.After != nil {
		query = query.Where("created_at > ?", *filter.After)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []support.Message
	if err := paginate(query, filter.Filter).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

var _ support.Repository = (*GormSupportRepository)(nil)
