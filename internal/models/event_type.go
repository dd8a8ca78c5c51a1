package models

import (
	"fmt"
	"strings"
)

// EventType represents the type of an inbox event.
type EventType string

const (
	OrderCreated         EventType = "order.created"
	OrderPaid            EventType = "order.paid"
	OrderCancelled       EventType = "order.cancelled"
	ShipmentUpdated      EventType = "shipment.updated"
	InvoiceIssued        EventType = "invoice.issued"
	PaymentFailed        EventType = "payment.failed"
	SupportTicketCreated EventType = "support.ticket.created"
	CartAbandoned        EventType = "cart.abandoned"
)

// notifiableTypes are the event types that produce outbound notifications.
// Everything else is recorded in the inbox but marked ignored by the
// event-processing stage.
var notifiableTypes = map[EventType]bool{
	OrderCreated:         true,
	OrderPaid:            true,
	OrderCancelled:       true,
	ShipmentUpdated:      true,
	InvoiceIssued:        true,
	PaymentFailed:        true,
	SupportTicketCreated: true,
}

// ParseEventType parses a string into an EventType.
// Returns an error if the event type is unknown.
func ParseEventType(name string) (EventType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	validTypes := []EventType{
		OrderCreated,
		OrderPaid,
		OrderCancelled,
		ShipmentUpdated,
		InvoiceIssued,
		PaymentFailed,
		SupportTicketCreated,
		CartAbandoned,
	}

	for _, eventType := range validTypes {
		if string(eventType) == name {
			return eventType, nil
		}
	}

	return "", fmt.Errorf("unknown event type: %s", name)
}

// Notifiable reports whether events of this type fan out into notifications.
func (t EventType) Notifiable() bool {
	return notifiableTypes[t]
}
