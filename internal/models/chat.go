package models

import "time"

// Chat request statuses.
const (
	ChatStatusReady    = "READY"
	ChatStatusPending  = "PENDING"
	ChatStatusComplete = "COMPLETE"
	ChatStatusFailed   = "FAILED"
)

// ChatEtaRequest — одна переписка с оператором про конкретный (судно, рейс).
// Ключ: (conversation_id, vessel_name, voyage_code).
type ChatEtaRequest struct {
	ID             uint64
	ConversationID string
	VesselName     string
	VoyageCode     *string
	Status         string
	LastKnownEta   *time.Time
	LastAskedAt    *time.Time
	Attempts       int32
	Transcript     []ChatMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ChatMessage struct {
	Sender  string    `json:"sender"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}
