package pgeta

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/models"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS vessel_schedules (
  id BIGSERIAL PRIMARY KEY,
  vessel_name TEXT NOT NULL,
  voyage_code TEXT NOT NULL DEFAULT '',
  terminal_code TEXT NOT NULL,
  berth TEXT NULL,
  eta TIMESTAMPTZ NULL,
  etd TIMESTAMPTZ NULL,
  cutoff TIMESTAMPTZ NULL,
  opengate TIMESTAMPTZ NULL,
  source TEXT NOT NULL,
  raw_payload TEXT NULL,
  scraped_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  UNIQUE (vessel_name, terminal_code, voyage_code)
)`,
		`CREATE INDEX IF NOT EXISTS idx_vessel_schedules_eta ON vessel_schedules(eta)`,
		`CREATE INDEX IF NOT EXISTS idx_vessel_schedules_expires_at ON vessel_schedules(expires_at)`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  vessel_name TEXT NOT NULL DEFAULT '',
  voyage_code TEXT NULL,
  terminal_code TEXT NULL,
  planned_delivery_date TIMESTAMPTZ NULL,
  last_eta_check_at TIMESTAMPTZ NULL,
  bot_received_eta_date TIMESTAMPTZ NULL,
  tracking_status TEXT NULL,
  departed BOOLEAN NOT NULL DEFAULT FALSE,
  status TEXT NOT NULL DEFAULT '%s',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`, models.ShipmentStatusInProgress),
		`CREATE INDEX IF NOT EXISTS idx_shipments_planned_delivery ON shipments(planned_delivery_date)`,
		`
CREATE TABLE IF NOT EXISTS eta_check_logs (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  terminal_code TEXT NOT NULL,
  vessel_name TEXT NOT NULL,
  voyage_code TEXT NULL,
  shipment_eta TIMESTAMPTZ NULL,
  updated_eta TIMESTAMPTZ NULL,
  tracking_status TEXT NOT NULL,
  vessel_found BOOLEAN NOT NULL,
  voyage_found BOOLEAN NOT NULL,
  raw_payload TEXT NULL,
  error TEXT NULL,
  initiator TEXT NULL,
  checked_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_eta_check_logs_shipment_checked ON eta_check_logs(shipment_id, checked_at DESC)`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chat_eta_requests (
  id BIGSERIAL PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  vessel_name TEXT NOT NULL,
  voyage_code TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '%s',
  last_known_eta TIMESTAMPTZ NULL,
  last_asked_at TIMESTAMPTZ NULL,
  attempts INT NOT NULL DEFAULT 0,
  transcript JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (conversation_id, vessel_name, voyage_code)
)`, models.ChatStatusReady),
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
