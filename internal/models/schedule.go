package models

import "time"

// VesselScheduleSnapshot — one terminal's point-in-time claim about one voyage.
// Unique on (vessel_name, terminal_code, voyage_code); superseded by newer
// scrapes of the same key and swept once expires_at passes.
type VesselScheduleSnapshot struct {
	ID           uint64
	VesselName   string
	VoyageCode   *string
	TerminalCode string
	Berth        *string
	Eta          *time.Time
	Etd          *time.Time
	Cutoff       *time.Time
	Opengate     *time.Time
	Source       string
	RawPayload   *string
	ScrapedAt    time.Time
	ExpiresAt    time.Time
}

// ScrapedVessel is one raw row as delivered by a terminal scraper, dates still
// source-formatted strings.
type ScrapedVessel struct {
	Name   string `json:"name" validate:"required"`
	Voyage string `json:"voyage"`
	Berth  string `json:"berth"`
	Eta    string `json:"eta"`
	Etd    string `json:"etd"`
}
