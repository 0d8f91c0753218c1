package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Canonical event types broadcast to session subscribers.
const (
	TypeStatusChange     = "status_change"
	TypeTranscript       = "transcript"
	TypeTriggerDetected  = "trigger_detected"
	TypeQueueUpdated     = "queue_updated"
	TypeClipCreated      = "clip_created"
	TypeDraftCreated     = "draft_created"
	TypeConnectionOpened = "connection_opened"
	TypeConnectionClosed = "connection_closed"
	TypeError            = "error"
)

// Envelope is the wire format every session event is broadcast in.
type Envelope struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	TS        time.Time       `json:"ts"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// New builds an envelope, marshaling payload to JSON. A payload that cannot
// be marshaled is dropped rather than failing the event.
func New(sessionID, typ string, payload any) Envelope {
	env := Envelope{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TS:        time.Now().UTC(),
		Type:      typ,
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			env.Payload = b
		}
	}
	return env
}

// Publisher delivers envelopes to session subscribers.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}
