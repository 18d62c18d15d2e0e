package messages

import "time"

// EtaChecked is published once per shipment check. Downstream dashboards and
// the shipment CRUD backend consume this stream instead of reading our tables.
type EtaChecked struct {
	ShipmentID   uint64 `json:"shipment_id"`
	TerminalCode string `json:"terminal_code"`
	VesselName   string `json:"vessel_name"`
	VoyageCode   *string `json:"voyage_code,omitempty"`

	CheckedAt time.Time `json:"checked_at"`

	TrackingStatus string     `json:"tracking_status"`
	Departed       bool       `json:"departed"`
	UpdatedEta     *time.Time `json:"updated_eta,omitempty"`

	VesselFound bool `json:"vessel_found"`
	VoyageFound bool `json:"voyage_found"`

	Error     *string `json:"error,omitempty"`
	Initiator *string `json:"initiator,omitempty"`
}
