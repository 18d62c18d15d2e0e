package models

import "time"

// Tracking statuses relative to the shipment's own planned delivery date.
const (
	TrackingStatusEarly    = "early"
	TrackingStatusOnTrack  = "on_track"
	TrackingStatusDelay    = "delay"
	TrackingStatusNotFound = "not_found"
)

// Shipment lifecycle statuses. Only IN_PROGRESS shipments are eligible for ETA checks.
const (
	ShipmentStatusInProgress = "IN_PROGRESS"
	ShipmentStatusCompleted  = "COMPLETED"
)

type Shipment struct {
	ID                  uint64
	Reference           string
	VesselName          string
	VoyageCode          *string
	TerminalCode        *string
	PlannedDeliveryDate *time.Time
	LastEtaCheckAt      *time.Time
	BotReceivedEtaDate  *time.Time
	TrackingStatus      *string
	Departed            bool
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VesselFullName собирает идентификатор судна так, как его показывают терминалы:
// имя + код рейса через пробел.
func (s *Shipment) VesselFullName() string {
	if s.VoyageCode == nil || *s.VoyageCode == "" {
		return s.VesselName
	}
	return s.VesselName + " " + *s.VoyageCode
}

type ShipmentCreateInput struct {
	Reference           string
	VesselName          string
	VoyageCode          *string
	TerminalCode        *string
	PlannedDeliveryDate *time.Time
}

// EtaCheckLog is the immutable audit record of one check attempt.
// Written once per evaluation, never updated; departure inference reads the
// latest confirmed row back.
type EtaCheckLog struct {
	ID             uint64
	ShipmentID     uint64
	TerminalCode   string
	VesselName     string
	VoyageCode     *string
	ShipmentEta    *time.Time
	UpdatedEta     *time.Time
	TrackingStatus string
	VesselFound    bool
	VoyageFound    bool
	RawPayload     *string
	Error          *string
	Initiator      *string
	CheckedAt      time.Time
}
