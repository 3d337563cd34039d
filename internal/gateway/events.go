package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"realm-chat-core/internal/model"
)

// Wire envelope spoken over the websocket edge. Event names match the
// original frontend protocol, so existing web clients keep working.
const (
	EventJoinHall      = "join-hall"
	EventLeaveHall     = "leave-hall"
	EventSendScroll    = "send-scroll"
	EventReceiveScroll = "receive-scroll"
)

var validate = validator.New()

type Envelope struct {
	Event string          `json:"event" validate:"required,oneof=join-hall leave-hall send-scroll"`
	Data  json.RawMessage `json:"data"`
}

type JoinHallPayload struct {
	HallID  uuid.UUID `json:"hall_id" validate:"required"`
	RealmID uuid.UUID `json:"realm_id"`
}

type SendScrollPayload struct {
	ID        uuid.UUID `json:"id"`
	CID       uuid.UUID `json:"cid" validate:"required"`
	HallID    uuid.UUID `json:"hall_id" validate:"required"`
	RealmID   uuid.UUID `json:"realm_id"`
	Content   string    `json:"content" validate:"required,max=4000"`
	CreatedAt string    `json:"created_at"`
}

// ParseEnvelope decodes and validates one inbound frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return &env, nil
}

func DecodeJoinHall(data json.RawMessage) (*JoinHallPayload, error) {
	var p JoinHallPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode join-hall: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid join-hall: %w", err)
	}
	return &p, nil
}

func DecodeSendScroll(data json.RawMessage) (*SendScrollPayload, error) {
	var p SendScrollPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode send-scroll: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid send-scroll: %w", err)
	}
	return &p, nil
}

// EncodeReceiveScroll frames an outbound scroll for websocket delivery.
func EncodeReceiveScroll(scroll model.Scroll) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"event": EventReceiveScroll,
		"data":  scroll,
	})
	return data
}
