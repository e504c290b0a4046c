package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is an inbound provider notification. It is consumed once per delivery.
type Event struct {
	DeliveryID string
	Type       string
	InvoiceID  string
	OrderID    string
	Raw        []byte
}

type eventEnvelope struct {
	DeliveryID string          `json:"deliveryId"`
	Type       string          `json:"type"`
	Event      string          `json:"event"`
	InvoiceID  string          `json:"invoiceId"`
	Metadata   json.RawMessage `json:"metadata"`
	Data       *eventObject    `json:"data"`
	Invoice    *eventObject    `json:"invoice"`
}

type eventObject struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata"`
}

// ParseEvent decodes a webhook body. Malformed JSON is an error.
func ParseEvent(body []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	ev := &Event{
		DeliveryID: env.DeliveryID,
		Type:       env.Type,
		InvoiceID:  env.InvoiceID,
		OrderID:    orderIDFrom(env.Metadata),
		Raw:        body,
	}
	if ev.Type == "" {
		ev.Type = env.Event
	}
	for _, obj := range []*eventObject{env.Data, env.Invoice} {
		if obj == nil {
			continue
		}
		if ev.InvoiceID == "" {
			ev.InvoiceID = obj.ID
		}
		if ev.OrderID == "" {
			ev.OrderID = orderIDFrom(obj.Metadata)
		}
	}
	return ev, nil
}

func orderIDFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var md map[string]any
	if err := json.Unmarshal(raw, &md); err != nil {
		return ""
	}
	for _, key := range []string{"orderId", "order_id"} {
		if v, ok := md[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// IsPaidEvent reports whether the event type announces a completed payment.
func IsPaidEvent(eventType string) bool {
	switch strings.ToLower(eventType) {
	case "invoice_paid", "invoice.paid", "invoicesettled":
		return true
	}
	return false
}

// IsPaid is IsPaidEvent for this event.
func (e *Event) IsPaid() bool {
	return IsPaidEvent(e.Type)
}
