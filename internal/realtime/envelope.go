package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags an Envelope with the kind of event it carries.
type MessageType string

const (
	TypeStats           MessageType = "stats"
	TypeTransaction     MessageType = "transaction"
	TypeAlert           MessageType = "alert"
	TypeEntry           MessageType = "entry"
	TypeRevenueUpdate   MessageType = "revenue_update"
	TypeUserActivity    MessageType = "user_activity"
	TypeInventoryUpdate MessageType = "inventory_update"
	TypeSecurityAlert   MessageType = "security_alert"
	TypePing            MessageType = "ping"
	TypePong            MessageType = "pong"
	TypeSubscribe       MessageType = "subscribe"
	TypeUnsubscribe     MessageType = "unsubscribe"
	TypeError           MessageType = "error"
)

// MessageTypes lists every known message type. shouldReceive and
// DecodePayload must cover each entry; adding a type here without a decision
// in both places is a bug.
var MessageTypes = []MessageType{
	TypeStats,
	TypeTransaction,
	TypeAlert,
	TypeEntry,
	TypeRevenueUpdate,
	TypeUserActivity,
	TypeInventoryUpdate,
	TypeSecurityAlert,
	TypePing,
	TypePong,
	TypeSubscribe,
	TypeUnsubscribe,
	TypeError,
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsControl reports whether t is a protocol control type rather than a
// domain event.
func (t MessageType) IsControl() bool {
	switch t {
	case TypePing, TypePong, TypeSubscribe, TypeUnsubscribe, TypeError:
		return true
	}
	return false
}

// Envelope is the wire format shared by the hub, sessions, and the client.
// FestivalID and Channel are optional on control frames.
type Envelope struct {
	Type       MessageType     `json:"type"`
	FestivalID string          `json:"festival_id,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with the payload marshaled in place.
// A nil payload produces an envelope with no data field (ping/pong).
func NewEnvelope(t MessageType, festivalID string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{
		Type:       t,
		FestivalID: festivalID,
		Timestamp:  now,
	}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env.Data = data
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// StatsPayload carries a live operational snapshot for a festival.
type StatsPayload struct {
	TicketsSold   int     `json:"tickets_sold"`
	Attendance    int     `json:"attendance"`
	Revenue       float64 `json:"revenue"`
	ActiveVendors int     `json:"active_vendors"`
}

// TransactionPayload describes a single completed or failed sale.
type TransactionPayload struct {
	TransactionID string  `json:"transaction_id"`
	VendorID      string  `json:"vendor_id,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
}

// AlertPayload is an operator-facing notification.
type AlertPayload struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// EntryPayload records a ticket scan at a gate.
type EntryPayload struct {
	TicketID string `json:"ticket_id"`
	Gate     string `json:"gate"`
	Result   string `json:"result"`
}

// RevenueUpdatePayload carries an incremental revenue change.
type RevenueUpdatePayload struct {
	Total  float64 `json:"total"`
	Delta  float64 `json:"delta"`
	Source string  `json:"source,omitempty"`
}

// UserActivityPayload describes a staff or attendee action.
type UserActivityPayload struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

// InventoryUpdatePayload reports a stock level change at a vendor.
type InventoryUpdatePayload struct {
	ItemID   string `json:"item_id"`
	VendorID string `json:"vendor_id,omitempty"`
	Quantity int    `json:"quantity"`
}

// SecurityAlertPayload is a high-priority incident report.
type SecurityAlertPayload struct {
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// SubscribePayload is carried by subscribe and unsubscribe frames.
type SubscribePayload struct {
	Channel string `json:"channel"`
}

// ErrorPayload is carried by error frames.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DecodePayload resolves an envelope's opaque data into the payload struct
// for its type. Ping and pong carry only a timestamp and decode to nil.
func DecodePayload(e Envelope) (any, error) {
	switch e.Type {
	case TypeStats:
		return decodeAs[StatsPayload](e)
	case TypeTransaction:
		return decodeAs[TransactionPayload](e)
	case TypeAlert:
		return decodeAs[AlertPayload](e)
	case TypeEntry:
		return decodeAs[EntryPayload](e)
	case TypeRevenueUpdate:
		return decodeAs[RevenueUpdatePayload](e)
	case TypeUserActivity:
		return decodeAs[UserActivityPayload](e)
	case TypeInventoryUpdate:
		return decodeAs[InventoryUpdatePayload](e)
	case TypeSecurityAlert:
		return decodeAs[SecurityAlertPayload](e)
	case TypeSubscribe, TypeUnsubscribe:
		return decodeAs[SubscribePayload](e)
	case TypeError:
		return decodeAs[ErrorPayload](e)
	case TypePing, TypePong:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown message type %q", e.Type)
}

func decodeAs[T any](e Envelope) (T, error) {
	var payload T
	if len(e.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return payload, nil
}

// ParseFrames splits a physical frame into newline-delimited envelopes.
// A parse failure on one sub-message is returned as an error but does not
// prevent the remaining sub-messages from being parsed.
func ParseFrames(data []byte) ([]Envelope, []error) {
	var (
		envelopes []Envelope
		errs      []error
	)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			errs = append(errs, fmt.Errorf("parse frame: %w", err))
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, errs
}
