package event

import (
	"sort"

	"github.com/shopfront/backend/internal/domain/catalog"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/shopfront/backend/internal/domain/inventory"
	"github.com/shopfront/backend/internal/domain/order"
	"github.com/shopfront/backend/internal/domain/shared"
	"github.com/shopfront/backend/internal/domain/support"
)

// shopEvents maps every event type the shop publishes to the payload it
// decodes into. An event type missing here cannot reach the outbox.
var shopEvents = map[string]shared.DomainEvent{
	catalog.EventTypeProductCreated:       &catalog.ProductCreatedEvent{},
	catalog.EventTypeProductUpdated:       &catalog.ProductUpdatedEvent{},
	catalog.EventTypeProductStatusChanged: &catalog.ProductStatusChangedEvent{},
	catalog.EventTypeProductDeleted:       &catalog.ProductDeletedEvent{},

	inventory.EventTypeStockAdjusted:   &inventory.StockAdjustedEvent{},
	inventory.EventTypeVariantStockLow: &inventory.VariantStockLowEvent{},

	order.EventTypeOrderPlaced:        &order.OrderPlacedEvent{},
	order.EventTypeOrderStatusChanged: &order.OrderStatusChangedEvent{},
	order.EventTypeOrderCancelled:     &order.OrderCancelledEvent{},
	order.EventTypeOrderPaid:          &order.OrderPaidEvent{},

	identity.EventTypeUserRegistered:      &identity.UserRegisteredEvent{},
	identity.EventTypeUserPasswordChanged: &identity.UserPasswordChangedEvent{},
	identity.EventTypeUserRoleChanged:     &identity.UserRoleChangedEvent{},
	identity.EventTypeUserLocked:          &identity.UserLockedEvent{},

	support.EventTypeConversationStarted: &support.ConversationStartedEvent{},
	support.EventTypeMessagePosted:       &support.MessagePostedEvent{},
	support.EventTypeConversationClosed:  &support.ConversationClosedEvent{},
}

// IsShopEvent reports whether the shop publishes eventType
func IsShopEvent(eventType string) bool {
	_, ok := shopEvents[eventType]
	return ok
}

// ShopEventTypes lists the published event types in name order
func ShopEventTypes() []string {
	types := make([]string, 0, len(shopEvents))
	for eventType := range shopEvents {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// RegisterAllEvents binds every shop event to its payload type
func RegisterAllEvents(serializer *EventSerializer) error {
	for _, eventType := range ShopEventTypes() {
		if err := serializer.Register(eventType, shopEvents[eventType]); err != nil {
			return err
		}
	}
	return nil
}
